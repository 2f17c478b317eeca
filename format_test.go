package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintTable_AlignsColumns(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"ID", "NAME"}, [][]string{
		{"g-1", "Sales"},
		{"g-long-id", "F"},
	})

	want := "ID         NAME\n" +
		"g-1        Sales\n" +
		"g-long-id  F\n"
	assert.Equal(t, want, buf.String())
}

func TestPrintTable_NoTrailingSpaces(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"A", "B"}, [][]string{
		{"wide-cell", ""},
	})

	for _, line := range bytes.Split(buf.Bytes(), []byte("\n")) {
		assert.Equal(t, string(bytes.TrimRight(line, " ")), string(line))
	}
}

func TestPrintTable_HeadersOnlyWhenNoRows(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"ID", "NAME"}, nil)

	assert.Equal(t, "ID  NAME\n", buf.String())
}
