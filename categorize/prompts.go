package categorize

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

const systemPrompt = `You are a product categorization assistant for an online electronics catalogue.

You will be given a product title and brand together with the admissible labels of a three-level category taxonomy.
Your task is to assign the product to exactly one category path.

Rules:
- the path always has three levels separated by ">"
- level 1 is fixed; level 2 and level 3 must be copied verbatim from the provided label lists
- never invent labels, never leave a level empty
- think step by step about what the product is before deciding

End your answer with a final line of the form:
Category path: <level 1>><level 2>><level 3>`

// SystemPrompt returns the instructions sent as the system message of every request.
func SystemPrompt() string {
	return systemPrompt
}

// Product holds the input features sent to the model.
type Product struct {
	Title string
	Brand string
}

// FormatUserPrompt renders the user message for one product. The label order given here is the order
// the model sees, which is what choice-shuffling perturbs.
func FormatUserPrompt(p Product, root string, second, third []Label, withDefinitions bool) string {
	var b strings.Builder

	b.WriteString("Product title: ")
	b.WriteString(strings.TrimSpace(p.Title))
	b.WriteString("\nBrand: ")
	if brand := strings.TrimSpace(p.Brand); brand != "" {
		b.WriteString(brand)
	} else {
		b.WriteString("(unknown)")
	}

	fmt.Fprintf(&b, "\n\nLevel 1 (fixed): %s\n", root)
	b.WriteString("\nLevel 2 labels:\n")
	writeLabels(&b, second, withDefinitions)
	b.WriteString("\nLevel 3 labels:\n")
	writeLabels(&b, third, withDefinitions)

	fmt.Fprintf(&b, "\nLet's think step by step, then finish with \"Category path: %s>level 2>level 3\".", root)
	return b.String()
}

func writeLabels(b *strings.Builder, labels []Label, withDefinitions bool) {
	for _, l := range labels {
		b.WriteString("- ")
		b.WriteString(l.Name)
		if withDefinitions && l.Description != "" {
			b.WriteString(": ")
			b.WriteString(l.Description)
		}
		b.WriteByte('\n')
	}
}

// PermuteLabels returns a shuffled copy of labels; the input slice is left untouched.
func PermuteLabels(labels []Label, rng *rand.Rand) []Label {
	out := append([]Label(nil), labels...)
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// RowRand derives a deterministic random source for one row so permutations do not depend on
// the order rows are scheduled in.
func RowRand(seed uint64, row int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(row)))
}
