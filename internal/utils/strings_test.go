package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTickers(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: nil},
		{name: "whitespace only", input: "   ", expected: nil},
		{name: "single ticker", input: "petr4", expected: []string{"PETR4"}},
		{name: "multiple with spaces", input: " PETR4 , vale3,ITSA4 ", expected: []string{"PETR4", "VALE3", "ITSA4"}},
		{name: "empty entries", input: "PETR4,,,VALE3,", expected: []string{"PETR4", "VALE3"}},
		{name: "duplicates", input: "PETR4,petr4,VALE3", expected: []string{"PETR4", "VALE3"}},
		{name: "only commas", input: ",,,", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseTickers(tt.input))
		})
	}
}

func TestNormalizeTicker(t *testing.T) {
	assert.Equal(t, "BBAS3", NormalizeTicker("  bbas3\t"))
	assert.Equal(t, "", NormalizeTicker(" "))
}
