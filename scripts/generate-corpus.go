//go:build ignore

// Package main generates a synthetic markdown corpus for benchmarking
// and load testing the index pipeline.
// Usage: go run scripts/generate-corpus.go -notes 1000 -output testdata/bench
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numNotes  = flag.Int("notes", 1000, "Number of notes to generate")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// domain groups the vocabulary one knowledge area draws from. Concepts
// feed titles and body sentences, so keyword search over a generated
// corpus has real signal instead of uniform noise.
type domain struct {
	name     string
	tags     []string
	concepts []string
}

var domains = []domain{
	{
		name: "statistics",
		tags: []string{"hypothesis-testing", "estimation", "regression", "bayesian"},
		concepts: []string{
			"two-sample t-test", "analysis of variance", "linear regression",
			"confidence interval", "p-value", "effect size", "power analysis",
			"bootstrap resampling", "Bayes factor", "prior distribution",
			"maximum likelihood", "residual diagnostics", "multiple comparisons",
		},
	},
	{
		name: "machine-learning",
		tags: []string{"supervised", "optimization", "evaluation", "deep-learning"},
		concepts: []string{
			"gradient descent", "cross-validation", "overfitting",
			"regularization", "feature scaling", "decision tree",
			"random forest", "embedding space", "attention mechanism",
			"learning rate schedule", "batch normalization", "transfer learning",
		},
	},
	{
		name: "chemistry",
		tags: []string{"organic", "kinetics", "thermodynamics", "analysis"},
		concepts: []string{
			"activation energy", "reaction rate", "equilibrium constant",
			"Le Chatelier's principle", "titration curve", "buffer solution",
			"oxidation state", "catalytic cycle", "Gibbs free energy",
			"nucleophilic substitution", "spectroscopy", "molar mass",
		},
	},
	{
		name: "economics",
		tags: []string{"micro", "macro", "markets", "policy"},
		concepts: []string{
			"opportunity cost", "marginal utility", "supply curve",
			"price elasticity", "comparative advantage", "inflation target",
			"fiscal multiplier", "moral hazard", "market equilibrium",
			"deadweight loss", "externality", "monetary policy",
		},
	},
	{
		name: "cooking",
		tags: []string{"technique", "science", "ingredients", "equipment"},
		concepts: []string{
			"Maillard reaction", "braising", "emulsification",
			"gluten development", "caramelization", "sous vide",
			"knife sharpening", "fermentation", "brining",
			"deglazing", "tempering chocolate", "resting meat",
		},
	},
}

// Sentence templates with two concept slots. Repetition across notes is
// fine for benchmarks; the point is term co-occurrence, not literature.
var sentenceTemplates = []string{
	"The %s interacts with the %s under most practical conditions.",
	"In applied work, %s is often confused with %s, but the two answer different questions.",
	"A common mistake is to apply %s without first checking the assumptions behind %s.",
	"When %s fails, practitioners usually fall back on %s as a more robust alternative.",
	"The relationship between %s and %s is easiest to see in a small worked example.",
	"Choosing between %s and %s depends on sample size and measurement noise.",
	"Textbooks introduce %s before %s, though historically the order was reversed.",
	"Sensitivity to %s can be reduced by controlling for %s early in the process.",
}

var sectionHeadings = []string{
	"Overview", "How it works", "When to use it", "Common pitfalls",
	"Worked example", "Assumptions", "Related ideas", "Further reading",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}
	for _, d := range domains {
		if err := os.MkdirAll(filepath.Join(*outputDir, d.name), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating domain directory %s: %v\n", d.name, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generating %d notes in %s...\n", *numNotes, *outputDir)

	generated := 0
	for i := 0; i < *numNotes; i++ {
		d := domains[i%len(domains)]
		if err := writeNote(rng, d, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing note %d: %v\n", i, err)
			continue
		}
		generated++
	}

	fmt.Printf("Generated %d notes successfully.\n", generated)
}

func writeNote(rng *rand.Rand, d domain, index int) error {
	concept := d.concepts[rng.Intn(len(d.concepts))]
	title := titleCase(concept)

	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %s\n", title)
	fmt.Fprintf(&b, "domain: %s\n", d.name)
	fmt.Fprintf(&b, "tags: [%s]\n", strings.Join(pickTags(rng, d.tags), ", "))
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", title)

	// 2-4 sections, 3-6 sentences each. Long enough to produce multiple
	// chunks per note at the default chunk size.
	sections := 2 + rng.Intn(3)
	for s := 0; s < sections; s++ {
		fmt.Fprintf(&b, "## %s\n\n", sectionHeadings[rng.Intn(len(sectionHeadings))])
		sentences := 3 + rng.Intn(4)
		for n := 0; n < sentences; n++ {
			tmpl := sentenceTemplates[rng.Intn(len(sentenceTemplates))]
			other := d.concepts[rng.Intn(len(d.concepts))]
			fmt.Fprintf(&b, tmpl+" ", concept, other)
		}
		b.WriteString("\n\n")
	}

	name := fmt.Sprintf("%s-%d.md", slugify(concept), index)
	path := filepath.Join(*outputDir, d.name, name)
	return os.WriteFile(path, []byte(b.String()), 0644)
}

// pickTags returns one or two tags from the domain pool.
func pickTags(rng *rand.Rand, pool []string) []string {
	first := rng.Intn(len(pool))
	tags := []string{pool[first]}
	if rng.Intn(2) == 0 {
		second := rng.Intn(len(pool))
		if second != first {
			tags = append(tags, pool[second])
		}
	}
	return tags
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 && r[0] >= 'a' && r[0] <= 'z' {
			r[0] = r[0] - 'a' + 'A'
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
