package evaluation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// McNemarResult holds the agreement table and test outcome.
//
// Table[0][0] counts rows both approaches got right, Table[0][1] rows only the first got right,
// Table[1][0] rows only the second got right and Table[1][1] rows neither got right.
type McNemarResult struct {
	Table     [2][2]int `json:"table"`
	Exact     bool      `json:"exact"`
	Statistic float64   `json:"statistic"`
	PValue    float64   `json:"p_value"`
}

// ContingencyTable cross-tabulates two per-row correctness vectors.
func ContingencyTable(correct1, correct2 []bool) ([2][2]int, error) {
	var table [2][2]int
	if len(correct1) != len(correct2) {
		return table, fmt.Errorf("ContingencyTable: %d vs %d rows", len(correct1), len(correct2))
	}
	for i := range correct1 {
		switch {
		case correct1[i] && correct2[i]:
			table[0][0]++
		case correct1[i]:
			table[0][1]++
		case correct2[i]:
			table[1][0]++
		default:
			table[1][1]++
		}
	}
	return table, nil
}

// McNemar tests whether two approaches evaluated on the same rows differ in accuracy.
// The approximate test is chi-square with continuity correction; the exact test is the
// two-sided binomial test on the discordant pairs.
func McNemar(correct1, correct2 []bool, exact bool) (McNemarResult, error) {
	table, err := ContingencyTable(correct1, correct2)
	if err != nil {
		return McNemarResult{}, fmt.Errorf("McNemar: %w", err)
	}
	return McNemarTable(table, exact), nil
}

func McNemarTable(table [2][2]int, exact bool) McNemarResult {
	res := McNemarResult{Table: table, Exact: exact}
	b, c := float64(table[0][1]), float64(table[1][0])
	n := b + c
	if n == 0 {
		res.PValue = 1
		return res
	}

	if exact {
		res.Statistic = math.Min(b, c)
		p := 2 * distuv.Binomial{N: n, P: 0.5}.CDF(res.Statistic)
		res.PValue = math.Min(1, p)
		return res
	}

	d := math.Abs(b-c) - 1
	res.Statistic = d * d / n
	res.PValue = distuv.ChiSquared{K: 1}.Survival(res.Statistic)
	return res
}
