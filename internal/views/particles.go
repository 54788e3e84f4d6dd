package views

import (
	"context"
	"math"
	"math/rand"

	"veia/viewsync/internal/ledger"
)

// Particle 粒子场中的一个点
type Particle struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	Size        float64 `json:"size"`
	Intensity   float64 `json:"intensity"`
	IsFlare     bool    `json:"is_flare"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	ZScore      float64 `json:"z_score"`
	AnomalyType string  `json:"anomaly_type"`
}

// CategoryCluster 类目簇（计数基于完整账本）
type CategoryCluster struct {
	Name      string  `json:"name"`
	CenterX   float64 `json:"center_x"`
	CenterY   float64 `json:"center_y"`
	CenterZ   float64 `json:"center_z"`
	Total     int     `json:"total"`
	Anomalies int     `json:"anomalies"`
}

// ParticleMeta 粒子场元信息
type ParticleMeta struct {
	TotalParticles int    `json:"total_particles"`
	FlareCount     int    `json:"flare_count"`
	HighIntensity  int    `json:"high_intensity"`
	Sampled        int    `json:"sampled"`
	GeneratedAt    string `json:"generated_at"`
}

// ParticleDoc particles.json
type ParticleDoc struct {
	Particles  []Particle        `json:"particles"`
	Categories []CategoryCluster `json:"categories"`
	Metadata   ParticleMeta      `json:"metadata"`
}

const (
	clusterSpacing  = 30.0 // 类目簇在 x 轴上的间距
	particleJitter  = 5.0
	particleZScale  = 3.0
	particleBase    = 2.0
	particleGrowth  = 2.0
	intensityDivide = 4.0
)

// ParticleView 价格偏离粒子场
type ParticleView struct {
	params Params
}

// NewParticleView 创建粒子场视图
func NewParticleView(p Params) *ParticleView {
	return &ParticleView{params: p}
}

// Name 视图名称
func (v *ParticleView) Name() string { return NameParticles }

// Build 高强度交易全量 + 其余交易均匀抽样
func (v *ParticleView) Build(ctx context.Context, l *ledger.Ledger, rng *rand.Rand) ([]Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	threshold := v.params.FlareThreshold

	// 1. 类目序号按完整账本首次出现顺序，计数同样基于完整账本
	categories := newFirstSeen()
	clusters := make([]CategoryCluster, 0)
	for i := range l.Transactions {
		txn := &l.Transactions[i]
		idx := categories.add(txn.Category)
		if idx == len(clusters) {
			clusters = append(clusters, CategoryCluster{
				Name:    txn.Category,
				CenterX: float64(idx) * clusterSpacing,
			})
		}
		clusters[idx].Total++
		if txn.IsAnomaly {
			clusters[idx].Anomalies++
		}
	}

	// 2. 选样：|z| > 阈值全部保留，其余抽取 min(N, 剩余数)
	high := make([]*ledger.Transaction, 0)
	rest := make([]*ledger.Transaction, 0)
	for i := range l.Transactions {
		txn := &l.Transactions[i]
		if math.Abs(txn.PriceZ) > threshold {
			high = append(high, txn)
		} else {
			rest = append(rest, txn)
		}
	}
	selected := make([]*ledger.Transaction, 0, len(high)+v.params.ParticleSample)
	selected = append(selected, high...)
	sampled := 0
	for _, idx := range sampleIndices(rng, len(rest), v.params.ParticleSample) {
		selected = append(selected, rest[idx])
		sampled++
	}

	// 3. 按类目顺序输出粒子
	byCategory := make([][]*ledger.Transaction, len(clusters))
	for _, txn := range selected {
		idx := categories.index[txn.Category]
		byCategory[idx] = append(byCategory[idx], txn)
	}

	particles := make([]Particle, 0, len(selected))
	flares := 0
	for idx, txns := range byCategory {
		baseX := float64(idx) * clusterSpacing
		for _, txn := range txns {
			dev := math.Abs(txn.PriceZ)
			p := Particle{
				X:           baseX + rng.NormFloat64()*particleJitter,
				Y:           rng.NormFloat64() * particleJitter,
				Z:           txn.PriceZ * particleZScale,
				Size:        particleBase + dev*particleGrowth,
				Intensity:   clampUnit(dev / intensityDivide),
				IsFlare:     dev > threshold,
				Category:    txn.Category,
				Price:       txn.Price,
				ZScore:      txn.PriceZ,
				AnomalyType: txn.AnomalyLabel,
			}
			if p.IsFlare {
				flares++
			}
			particles = append(particles, p)
		}
	}

	doc := &ParticleDoc{
		Particles:  particles,
		Categories: clusters,
		Metadata: ParticleMeta{
			TotalParticles: len(particles),
			FlareCount:     flares,
			HighIntensity:  len(high),
			Sampled:        sampled,
			GeneratedAt:    v.params.generatedAt(),
		},
	}

	return []Artifact{{
		Name:    NameParticles,
		Payload: doc,
		Counts:  map[string]int{"particles": len(particles), "flares": flares},
	}}, nil
}
