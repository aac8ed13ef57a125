package table

import (
	"errors"
	"strings"
	"testing"
)

func TestSuggest(t *testing.T) {
	sheets := []string{"Александров А.А", "ИП Ермалович А.С", "Статистика (Декабрь)"}

	tests := []struct {
		name string
		want string
	}{
		{"Статистика (декабрь)", "Статистика (Декабрь)"},
		{"ИП Ермолович А.С", "ИП Ермалович А.С"},
		{"Склад", ""},
	}
	for _, tt := range tests {
		if got := Suggest(tt.name, sheets); got != tt.want {
			t.Errorf("Suggest(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}

	if got := Suggest("x", nil); got != "" {
		t.Errorf("Suggest with no candidates = %q, want empty", got)
	}
}

func TestMissingSheetError(t *testing.T) {
	err := MissingSheetError(Ref{Spreadsheet: "book", Sheet: "Статистика (Ноябрь)"}, []string{"Статистика (Декабрь)"})

	if !errors.Is(err, ErrFatal) {
		t.Errorf("error = %v, want ErrFatal", err)
	}
	if !strings.Contains(err.Error(), `did you mean "Статистика (Декабрь)"`) {
		t.Errorf("error = %q, want suggestion", err.Error())
	}
}
