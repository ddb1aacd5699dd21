package geocode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BLOCK 4500 UNIVERSITY AVE", "4500 UNIVERSITY AVE"},
		{"4500 BLOCK UNIVERSITY AVE", "4500 UNIVERSITY AVE"},
		{"block 100 main st", "100 main st"},
		{"04th St", "4th St"},
		{"0123 Main St", "123 Main St"},
		{"100 Main St", "100 Main St"},
		{"0 Main St", "0 Main St"},
		{"  multiple   spaces  ", "multiple spaces"},
		{"Main St / 5th Ave", "Main St and 5th Ave"},
		{"5TH/MAIN", "5TH and MAIN"},
		{"BLOCKADE RD", "BLOCKADE RD"},
		{"4500 UNIVERSITY　AVE", "4500 UNIVERSITY AVE"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"BLOCK 4500 UNIVERSITY AVE",
		"BLOCK/05TH",
		"0 0 007 BLOCK  BLOCK x",
		"Main St / 5th Ave",
		"  04th   St   /  0123 Main ",
		"BLOCK",
		"x BLOCK",
		" BLOCK  /0\t01",
		"00000",
		"A0123 5-07",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestExpandAbbreviations(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Main St", "Main Street"},
		{"5th Ave", "5th Avenue"},
		{"Ocean Blvd", "Ocean Boulevard"},
		{"Harbor Dr", "Harbor Drive"},
		{"SR 163 FWY", "SR 163 Freeway"},
		{"Scripps Pkwy", "Scripps Parkway"},
		{"Carmel Mountain Pky", "Carmel Mountain Parkway"},
		{"Stanley Ave", "Stanley Avenue"},
		{"Drake Ln", "Drake Lane"},
		{"Via Capri Ter", "Via Capri Terrace"},
		{"Avenida Wy", "Avenida Way"},
		{"Fire Cir", "Fire Circle"},
		{"Pacific Hwy", "Pacific Highway"},
		{"Roselle Ct", "Roselle Court"},
		{"Camino Pl", "Camino Place"},
		{"Morena Rd", "Morena Road"},
		{"University", "University"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandAbbreviations(tt.in))
		})
	}
}
