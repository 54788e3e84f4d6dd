package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"veia/viewsync/pkg/errorutil"
)

// 交易表必需的列
var transactionColumns = []string{
	"transaction_id", "timestamp", "buyer_id", "seller_id", "category",
	"price", "price_z", "marketplace", "buyer_region", "seller_region", "anomaly_label",
}

// 可识别的时间格式
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// LoadCSV 从文件加载交易表和用户表
// usersPath 为空时不加载用户表（所有用户取缺省值）
func LoadCSV(transactionsPath, usersPath string) (*Ledger, error) {
	tf, err := os.Open(transactionsPath)
	if err != nil {
		return nil, fmt.Errorf("open transactions failed: %w", err)
	}
	defer tf.Close()

	txns, err := ReadTransactions(tf)
	if err != nil {
		return nil, err
	}

	var users []User
	if usersPath != "" {
		uf, err := os.Open(usersPath)
		if err != nil {
			return nil, fmt.Errorf("open users failed: %w", err)
		}
		defer uf.Close()

		users, err = ReadUsers(uf)
		if err != nil {
			return nil, err
		}
	}

	return New(txns, users), nil
}

// ReadTransactions 解析交易表 CSV
func ReadTransactions(r io.Reader) ([]Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, errorutil.InvalidInput("read transactions header failed", err)
	}
	cols := indexColumns(header)
	for _, name := range transactionColumns {
		if _, ok := cols[name]; !ok {
			return nil, errorutil.InvalidInput(fmt.Sprintf("transactions: missing column %q", name), nil)
		}
	}
	notesCol, hasNotes := cols["anomaly_notes"]

	txns := make([]Transaction, 0)
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errorutil.InvalidInput(fmt.Sprintf("transactions: line %d", line), err)
		}

		get := func(name string) string {
			idx := cols[name]
			if idx >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[idx])
		}

		ts, err := parseTimestamp(get("timestamp"))
		if err != nil {
			return nil, errorutil.InvalidInput(fmt.Sprintf("transactions: line %d timestamp", line), err)
		}
		price, err := parseFinite(get("price"))
		if err != nil {
			return nil, errorutil.InvalidInput(fmt.Sprintf("transactions: line %d price", line), err)
		}
		priceZ, err := parseFinite(get("price_z"))
		if err != nil {
			return nil, errorutil.InvalidInput(fmt.Sprintf("transactions: line %d price_z", line), err)
		}

		txn := Transaction{
			TransactionID: get("transaction_id"),
			Timestamp:     ts,
			BuyerID:       get("buyer_id"),
			SellerID:      get("seller_id"),
			Category:      get("category"),
			Price:         price,
			PriceZ:        priceZ,
			Marketplace:   get("marketplace"),
			BuyerRegion:   get("buyer_region"),
			SellerRegion:  get("seller_region"),
			AnomalyLabel:  get("anomaly_label"),
		}
		if hasNotes && notesCol < len(rec) && !isNull(rec[notesCol]) {
			txn.AnomalyNotes = strings.TrimSpace(rec[notesCol])
		}
		txns = append(txns, txn)
	}

	return txns, nil
}

// ReadUsers 解析用户表 CSV
func ReadUsers(r io.Reader) ([]User, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, errorutil.InvalidInput("read users header failed", err)
	}
	cols := indexColumns(header)
	idCol, ok := cols["user_id"]
	if !ok {
		return nil, errorutil.InvalidInput(`users: missing column "user_id"`, nil)
	}
	regionCol, hasRegion := cols["region"]
	kycCol, hasKYC := cols["kyc_verified"]

	users := make([]User, 0)
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errorutil.InvalidInput(fmt.Sprintf("users: line %d", line), err)
		}
		if idCol >= len(rec) {
			continue
		}

		u := User{UserID: strings.TrimSpace(rec[idCol])}
		if hasRegion && regionCol < len(rec) && !isNull(rec[regionCol]) {
			region := strings.TrimSpace(rec[regionCol])
			u.Region = &region
		}
		if hasKYC && kycCol < len(rec) {
			u.KYCVerified = parseNullableBool(rec[kycCol])
		}
		users = append(users, u)
	}

	return users, nil
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	return cols
}

// parseFinite 数值列不接受 NaN / Inf（JSON 无法编码）
func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// isNull 常见的空值写法（上游导出时会写成 nan / None）
func isNull(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "null", "none", "na":
		return true
	}
	return false
}

func parseNullableBool(s string) *bool {
	if isNull(s) {
		return nil
	}
	var v bool
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "t", "1.0":
		v = true
	case "false", "0", "no", "n", "f", "0.0":
		v = false
	default:
		return nil
	}
	return &v
}
