// Package costbreakdown converts the structured quote cost model to and from
// the text column it is persisted in.
package costbreakdown

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrCorrupted marks stored breakdown text that cannot be decoded.
var ErrCorrupted = errors.New("cost breakdown corrupted")

// Breakdown itemises a quote price.
type Breakdown struct {
	LaborCost     float64 `json:"laborCost"`
	MaterialsCost float64 `json:"materialsCost"`
	EquipmentCost float64 `json:"equipmentCost"`
	OtherCosts    float64 `json:"otherCosts"`
	TaxAmount     float64 `json:"taxAmount"`
	TotalAmount   float64 `json:"totalAmount"`
}

type wireBreakdown struct {
	LaborCost     *float64 `json:"laborCost"`
	MaterialsCost *float64 `json:"materialsCost"`
	EquipmentCost *float64 `json:"equipmentCost"`
	OtherCosts    *float64 `json:"otherCosts"`
	TaxAmount     *float64 `json:"taxAmount"`
	TotalAmount   *float64 `json:"totalAmount"`
}

// Encode serialises the breakdown for storage.
func Encode(b Breakdown) (string, error) {
	for _, v := range b.components() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("encode cost breakdown: non-finite amount")
		}
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encode cost breakdown: %w", err)
	}
	return string(payload), nil
}

// Decode parses stored breakdown text. Absent, malformed or partial payloads
// fail with ErrCorrupted; missing lines are never read as zero.
func Decode(raw string) (Breakdown, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Breakdown{}, fmt.Errorf("%w: empty payload", ErrCorrupted)
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.DisallowUnknownFields()

	var wire *wireBreakdown
	if err := dec.Decode(&wire); err != nil {
		return Breakdown{}, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if dec.More() {
		return Breakdown{}, fmt.Errorf("%w: trailing data", ErrCorrupted)
	}
	if wire == nil {
		return Breakdown{}, fmt.Errorf("%w: null payload", ErrCorrupted)
	}
	fields := map[string]*float64{
		"laborCost":     wire.LaborCost,
		"materialsCost": wire.MaterialsCost,
		"equipmentCost": wire.EquipmentCost,
		"otherCosts":    wire.OtherCosts,
		"taxAmount":     wire.TaxAmount,
		"totalAmount":   wire.TotalAmount,
	}
	for name, v := range fields {
		if v == nil {
			return Breakdown{}, fmt.Errorf("%w: %s missing", ErrCorrupted, name)
		}
	}
	return Breakdown{
		LaborCost:     *wire.LaborCost,
		MaterialsCost: *wire.MaterialsCost,
		EquipmentCost: *wire.EquipmentCost,
		OtherCosts:    *wire.OtherCosts,
		TaxAmount:     *wire.TaxAmount,
		TotalAmount:   *wire.TotalAmount,
	}, nil
}

// Validate rejects negative amounts.
func (b Breakdown) Validate() error {
	names := []string{"laborCost", "materialsCost", "equipmentCost", "otherCosts", "taxAmount", "totalAmount"}
	for i, v := range b.components() {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be a non-negative amount", names[i])
		}
	}
	return nil
}

// Consistent reports whether totalAmount equals the sum of the other lines, to the cent.
func (b Breakdown) Consistent() bool {
	sum := Cents(b.LaborCost) + Cents(b.MaterialsCost) + Cents(b.EquipmentCost) + Cents(b.OtherCosts) + Cents(b.TaxAmount)
	return sum == Cents(b.TotalAmount)
}

// Cents converts an amount to integer minor units.
func Cents(v float64) int64 {
	return int64(math.Round(v * 100))
}

func (b Breakdown) components() []float64 {
	return []float64{b.LaborCost, b.MaterialsCost, b.EquipmentCost, b.OtherCosts, b.TaxAmount, b.TotalAmount}
}
