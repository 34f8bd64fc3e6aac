// Пакет validation содержит единственную копию правил проверки ресурса.
// Функции чистые: они ничего не знают о HTTP и хранилище и возвращают список нарушений
// в фиксированном порядке (имя -> описание -> статус)
package validation

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"ResourceAPI/internal/model"
)

const (
	MaxNameLength        = 255
	MaxDescriptionLength = 1000
	MinPage              = 1
	MinLimit             = 1
	MaxLimit             = 100
)

// Violation описывает одно нарушенное правило
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidateCreate проверяет данные создания: name и description обязательны, status опционален
func ValidateCreate(in model.ResourceInput) []Violation {
	var vs []Violation
	vs = append(vs, checkText("name", "Name", in.Name, MaxNameLength, true)...)
	vs = append(vs, checkText("description", "Description", in.Description, MaxDescriptionLength, true)...)
	vs = append(vs, checkStatus(in.Status)...)
	return vs
}

// ValidateUpdate проверяет данные обновления: все поля опциональны, но переданные должны быть корректны
func ValidateUpdate(in model.ResourceInput) []Violation {
	var vs []Violation
	vs = append(vs, checkText("name", "Name", in.Name, MaxNameLength, false)...)
	vs = append(vs, checkText("description", "Description", in.Description, MaxDescriptionLength, false)...)
	vs = append(vs, checkStatus(in.Status)...)
	return vs
}

// ValidatePagination проверяет границы страницы и размера страницы
func ValidatePagination(page, limit int) []Violation {
	var vs []Violation
	if page < MinPage {
		vs = append(vs, Violation{Field: "page", Message: "Page must be greater than or equal to 1"})
	}
	if limit < MinLimit || limit > MaxLimit {
		vs = append(vs, Violation{Field: "limit", Message: fmt.Sprintf("Limit must be between %d and %d", MinLimit, MaxLimit)})
		return vs
	}
	// смещение (page-1)*limit должно помещаться в int
	if page > math.MaxInt/limit {
		vs = append(vs, Violation{Field: "page", Message: "Page is out of range"})
	}
	return vs
}

// ValidateStatusFilter проверяет значение фильтра статуса; пустая строка означает отсутствие фильтра
func ValidateStatusFilter(s model.Status) []Violation {
	if s != "" && !s.Valid() {
		return []Violation{{Field: "status", Message: "Status filter must be either 'active' or 'inactive'"}}
	}
	return nil
}

// ValidateListFilters объединяет проверки пагинации и фильтра статуса
func ValidateListFilters(f model.ListFilters) []Violation {
	return append(ValidatePagination(f.Page, f.Limit), ValidateStatusFilter(f.Status)...)
}

// First возвращает сообщение первого нарушения или пустую строку
func First(vs []Violation) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0].Message
}

// checkText проверяет наличие (после trim) и длину текстового поля.
// Длина считается в символах по исходному значению, до trim
func checkText(field, label string, value *string, max int, required bool) []Violation {
	if value == nil {
		if required {
			return []Violation{{Field: field, Message: label + " is required"}}
		}
		return nil
	}
	if strings.TrimSpace(*value) == "" {
		if required {
			return []Violation{{Field: field, Message: label + " is required"}}
		}
		return []Violation{{Field: field, Message: label + " cannot be empty"}}
	}
	if utf8.RuneCountInString(*value) > max {
		return []Violation{{Field: field, Message: fmt.Sprintf("%s must not exceed %d characters", label, max)}}
	}
	return nil
}

func checkStatus(value *string) []Violation {
	if value == nil {
		return nil
	}
	if !model.Status(*value).Valid() {
		return []Violation{{Field: "status", Message: "Status must be either 'active' or 'inactive'"}}
	}
	return nil
}
