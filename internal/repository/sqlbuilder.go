package repository

import (
	"fmt"
	"strings"
)

// valuesBuilder накапливает кортежи multi-row VALUES с позиционными
// параметрами. Избавляет bulk upsert-ы от ручного форматирования
// плейсхолдеров: builder сам нумерует $N по мере добавления строк.
type valuesBuilder struct {
	rows []string
	args []any
}

// AddRow добавляет один кортеж значений.
// Формирует "($n, $n+1, ...)" и запоминает аргументы.
func (b *valuesBuilder) AddRow(vals ...any) {
	placeholders := make([]string, len(vals))
	for i := range vals {
		placeholders[i] = fmt.Sprintf("$%d", len(b.args)+i+1)
	}
	b.rows = append(b.rows, "("+strings.Join(placeholders, ", ")+")")
	b.args = append(b.args, vals...)
}

// Len возвращает количество добавленных кортежей.
func (b *valuesBuilder) Len() int {
	return len(b.rows)
}

// Values возвращает текст "VALUES (...), (...)" для вставки в запрос.
func (b *valuesBuilder) Values() string {
	return "VALUES " + strings.Join(b.rows, ", ")
}

// Args возвращает накопленные аргументы в порядке нумерации.
func (b *valuesBuilder) Args() []any {
	return b.args
}
