package response

import (
	"errors"
	"fmt"

	"github.com/curadoria-elite-travel/fulfillment/internal/models"
	"github.com/curadoria-elite-travel/fulfillment/internal/services/resolver"
)

// ItemResult результат выдачи по одной позиции.
type ItemResult struct {
	Category string `json:"category" example:"City Guide"`
	City     string `json:"city" example:"New York - USA"`
	OK       bool   `json:"ok" example:"true"`
	Outcome  string `json:"outcome" example:"granted"`
	PDFURL   string `json:"pdf_url,omitempty" example:"https://cdn.example/ny.pdf"`
	Error    string `json:"error,omitempty"`
}

// Item переводит результат выдачи в ответ. Текст внутренних ошибок наружу не отдается.
// Для ненайденного материала в ошибку добавляются нормализованные ключи поиска,
// по ним видно, какую строку каталога нужно завести.
func Item(res models.ItemResult) ItemResult {
	out := ItemResult{
		Category: res.Item.Category,
		City:     res.Item.City,
		OK:       res.Outcome.OK(),
		Outcome:  string(res.Outcome),
		PDFURL:   res.PDFURL,
	}
	switch res.Outcome {
	case models.OutcomeMaterialNotFound:
		out.Error = "material not found"
		var nf *resolver.NotFoundError
		if errors.As(res.Err, &nf) {
			out.Error = fmt.Sprintf("material not found (keys: %s / %s)", nf.CategoryKey, nf.CityKey)
		}
	case models.OutcomeStoreError:
		out.Error = "internal error"
	}
	return out
}

// Items переводит список результатов.
func Items(results []models.ItemResult) []ItemResult {
	out := make([]ItemResult, 0, len(results))
	for _, res := range results {
		out = append(out, Item(res))
	}
	return out
}
