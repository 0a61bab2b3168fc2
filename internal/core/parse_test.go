package core

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestParseCSV(t *testing.T) {
	input := "\ufeffCode, Item Name ,Qty\r\n" +
		"A1,\"Paracetamol, 500mg\",5\r\n" +
		"\r\n" +
		"A2,Ibuprofen\n" + // field count mismatch
		",,\n" + // all empty
		"A3,Cetirizine,10\n"

	table, err := ParseCSV([]byte(input))
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}

	wantHeaders := []string{"Code", "Item Name", "Qty"}
	if strings.Join(table.Headers, "|") != strings.Join(wantHeaders, "|") {
		t.Errorf("Headers = %v, want %v", table.Headers, wantHeaders)
	}

	if len(table.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(table.Rows))
	}
	if got := table.Rows[0]["Item Name"]; got != "Paracetamol, 500mg" {
		t.Errorf("Rows[0][Item Name] = %q, want quoted comma preserved", got)
	}
	if got := table.Rows[1]["Code"]; got != "A3" {
		t.Errorf("Rows[1][Code] = %q, want %q", got, "A3")
	}
}

func TestParseCSV_MalformedInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "header only", input: "Code,Name\n"},
		{name: "blank lines only", input: "\n\n\r\n"},
		{name: "no valid rows", input: "Code,Name\nA1\n,\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV([]byte(tt.input))
			if !errors.Is(err, ErrMalformedInput) {
				t.Errorf("ParseCSV() error = %v, want ErrMalformedInput", err)
			}
		})
	}
}

func TestReadInput(t *testing.T) {
	data, err := ReadInput(bytes.NewReader([]byte("\xEF\xBB\xBFa,b\n1,\xff\n")), 0)
	if err != nil {
		t.Fatalf("ReadInput() error = %v", err)
	}
	if bytes.HasPrefix(data, utf8BOM) {
		t.Error("ReadInput() kept the BOM")
	}
	if !strings.Contains(string(data), "\uFFFD") {
		t.Errorf("ReadInput() = %q, want invalid byte replaced", data)
	}
}

func TestReadInput_Limits(t *testing.T) {
	if _, err := ReadInput(strings.NewReader("0123456789"), 5); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("ReadInput(oversized) error = %v, want ErrFileTooLarge", err)
	}
	if _, err := ReadInput(strings.NewReader(" \n "), 0); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("ReadInput(blank) error = %v, want ErrEmptyFile", err)
	}
}
