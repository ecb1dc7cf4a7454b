package paymentprovider

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/curadoria-elite-travel/fulfillment/internal/models"
)

// Ключи метаданных оплаты.
const (
	MetaUserID   = "user_id"
	MetaItems    = "items"
	MetaCategory = "category"
	MetaCity     = "city"
	MetaSource   = "source"
	MetaEnv      = "env"
)

const (
	// MaxMetaValueLen предел длины одного значения метаданных у Stripe.
	MaxMetaValueLen = 500
	// MaxItemChunks сколько ключей items_N помещается рядом со служебными (у Stripe не больше 50 ключей).
	MaxItemChunks = 40
)

// ErrCartTooLarge корзина не помещается в метаданные оплаты.
var ErrCartTooLarge = errors.New("cart does not fit into payment metadata")

// chunkKey имя ключа n-го куска JSON корзины.
func chunkKey(n int) string {
	return MetaItems + "_" + strconv.Itoa(n)
}

// SanitizeItems обрезает пробелы по краям и отбрасывает позиции без категории или города.
func SanitizeItems(items []models.Item) []models.Item {
	out := make([]models.Item, 0, len(items))
	for _, it := range items {
		it.Category = strings.TrimSpace(it.Category)
		it.City = strings.TrimSpace(it.City)
		if it.Category == "" || it.City == "" {
			continue
		}
		out = append(out, it)
	}
	return out
}

// ParseItems достаёт список позиций из метаданных оплаты.
// JSON-массив под ключом items (или склеенный из items_0..items_N) имеет
// приоритет над одиночными category/city.
func ParseItems(metadata map[string]string) ([]models.Item, error) {
	if raw := strings.TrimSpace(itemsJSON(metadata)); raw != "" {
		var items []models.Item
		if err := json.Unmarshal([]byte(raw), &items); err == nil {
			if clean := SanitizeItems(items); len(clean) > 0 {
				return clean, nil
			}
		}
	}

	single := SanitizeItems([]models.Item{{
		Category: metadata[MetaCategory],
		City:     metadata[MetaCity],
	}})
	if len(single) == 0 {
		return nil, ErrMetadataMissing
	}
	return single, nil
}

// itemsJSON склеивает куски items_0..items_N по порядку до первого пропуска.
// Без items_0 берется ключ items целиком.
func itemsJSON(metadata map[string]string) string {
	if _, ok := metadata[chunkKey(0)]; !ok {
		return metadata[MetaItems]
	}
	var b strings.Builder
	for n := 0; ; n++ {
		part, ok := metadata[chunkKey(n)]
		if !ok {
			break
		}
		b.WriteString(part)
	}
	return b.String()
}

// splitValue режет строку на куски не длиннее limit байт, не разрывая руны.
func splitValue(s string, limit int) []string {
	var parts []string
	for len(s) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		parts = append(parts, s[:cut])
		s = s[cut:]
	}
	return append(parts, s)
}

// OwnerClaim возвращает пользователя, записанного в метаданные при создании оплаты.
func OwnerClaim(metadata map[string]string) string {
	return strings.TrimSpace(metadata[MetaUserID])
}

// EncodeMetadata собирает метаданные оплаты.
// JSON корзины длиннее MaxMetaValueLen раскладывается по ключам items_0..items_N.
// Для единственной позиции дополнительно пишутся category и city.
func EncodeMetadata(userID string, items []models.Item, source string) (map[string]string, error) {
	meta := map[string]string{
		MetaUserID: userID,
	}
	if source != "" {
		meta[MetaSource] = source
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	if len(raw) <= MaxMetaValueLen {
		meta[MetaItems] = string(raw)
	} else {
		parts := splitValue(string(raw), MaxMetaValueLen)
		if len(parts) > MaxItemChunks {
			return nil, ErrCartTooLarge
		}
		for n, part := range parts {
			meta[chunkKey(n)] = part
		}
	}

	if len(items) == 1 {
		meta[MetaCategory] = items[0].Category
		meta[MetaCity] = items[0].City
	}
	return meta, nil
}
