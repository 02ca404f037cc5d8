package core

import (
	"strings"

	"datamanager/pkg/domain"
)

// StatisticsCollection is the collection the statistics panel summarizes.
const StatisticsCollection = "artikel"

// Statistics summarizes article offers per market.
type Statistics struct {
	Rewe            int `json:"rewe"`
	ReweOnOffer     int `json:"rewe_on_offer"`
	Penny           int `json:"penny"`
	PennyOnOffer    int `json:"penny_on_offer"`
	Food            int `json:"food"`
	FoodWithProduct int `json:"food_with_product"`
}

// ComputeStatistics counts articles by market, offer and food flags. Food
// articles count as having a product when produkt is non-empty and not the
// placeholder "test".
func ComputeStatistics(records []domain.Record) Statistics {
	var s Statistics
	for _, r := range records {
		offer := truthy(r, "angebot")
		switch fieldText(r, "markt") {
		case "Rewe":
			s.Rewe++
			if offer {
				s.ReweOnOffer++
			}
		case "Penny":
			s.Penny++
			if offer {
				s.PennyOnOffer++
			}
		}
		if truthy(r, "food") {
			s.Food++
			if p := strings.TrimSpace(fieldText(r, "produkt")); p != "" && p != "test" {
				s.FoodWithProduct++
			}
		}
	}
	return s
}

// Statistics computes the panel over the current article snapshot.
func (m *Manager) Statistics() Statistics {
	c, _ := m.Snapshot().Collection(StatisticsCollection)
	return ComputeStatistics(c.Records)
}

func fieldText(r domain.Record, field string) string {
	_, v, ok := r.Lookup(field)
	if !ok {
		return ""
	}
	s, _ := v.AsString()
	return s
}

func truthy(r domain.Record, field string) bool {
	_, v, ok := r.Lookup(field)
	if !ok {
		return false
	}
	switch v.Kind() {
	case domain.KindBoolean:
		b, _ := v.AsBool()
		return b
	case domain.KindString:
		s, _ := v.AsString()
		return strings.EqualFold(s, "true")
	case domain.KindNumber:
		n, _ := v.AsNumber()
		return n != 0
	case domain.KindNull, domain.KindTimestamp, domain.KindArray, domain.KindMap:
		return false
	default:
		return false
	}
}
