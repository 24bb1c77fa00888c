package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ScenarioGenerator creates Timesheet/Planning export pairs for manual runs
// of the reconcile command
type ScenarioGenerator struct {
	Seed      int64
	OutputDir string
	People    int
	rng       *rand.Rand
}

// clientCodes maps the client code used in Timesheet exports to the one
// Vision uses. Codes that differ need the client map to line up.
var clientCodes = map[string]string{
	"AKB":    "AKB",
	"NEDBNK": "NEDBANK",
	"SBSA":   "SBSA",
	"DSY":    "DSY",
}

var currencies = []string{"ZAR", "USD", "EUR"}

const scenarioRules = `field_mappings:
  - id: FM001
    source_field: Person
    target_field: employee
  - id: FM002
    source_field: Project
    target_field: project
  - id: FM003
    source_field: Client
    target_field: client
composite_keys:
  - id: CK001
    system: ElapseIT
    formula: Person.Client
  - id: CK002
    system: Vision
    formula: employee.client
client_extraction:
  - id: CE001
    system: ElapseIT
    field_name: Client
    method: direct-field
  - id: CE002
    system: Vision
    field_name: client
    method: direct-field
multimatch:
  - id: MM001
    source_pattern: "AKBANK|CVA"
    target_pattern: "AKB|CHANGE|MX|FIX|CVA"
`

func main() {
	var (
		outputDir = flag.String("output-dir", "generated_scenarios", "Output directory for scenario files")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "Random seed for reproducible generation")
		scenario  = flag.String("scenario", "all", "Scenario to generate: all, basic, near-miss, currency, performance")
		people    = flag.Int("people", 500, "Number of people in the performance scenario")
	)
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	generator := &ScenarioGenerator{
		Seed:      *seed,
		OutputDir: *outputDir,
		People:    *people,
		rng:       rand.New(rand.NewSource(*seed)),
	}

	generator.writeFile("rules.yaml", scenarioRules)

	switch *scenario {
	case "basic":
		generator.GenerateBasicScenario()
	case "near-miss":
		generator.GenerateNearMissScenario()
	case "currency":
		generator.GenerateCurrencyScenario()
	case "performance":
		generator.GeneratePerformanceScenario()
	case "all":
		generator.GenerateAllScenarios()
	default:
		log.Fatalf("Unknown scenario: %s", *scenario)
	}

	fmt.Printf("Generated scenarios in %s\n", *outputDir)
	fmt.Printf("Seed used: %d\n", *seed)
}

// GenerateAllScenarios generates all predefined scenarios
func (sg *ScenarioGenerator) GenerateAllScenarios() {
	fmt.Println("Generating all scenarios...")
	sg.GenerateBasicScenario()
	sg.GenerateNearMissScenario()
	sg.GenerateCurrencyScenario()
	sg.GeneratePerformanceScenario()
}

// GenerateBasicScenario covers every disposition once: a composite match, a
// multimatch rewrite, an unmatched record, an excluded person and a record
// with a missing key field
func (sg *ScenarioGenerator) GenerateBasicScenario() {
	fmt.Println("Generating basic scenario...")

	timesheet := [][]string{
		{"Person", "Client", "Project"},
		{"J.Doe", "AKB", "AKB|RUN"},
		{"J.Doe", "AKBANK", "AKBANK|CVA"},
		{"A.Smith", "NEDBNK", "NED|X"},
		{"BACKLOG ALLOCATIONS", "AKB", "AKB|RUN"},
		{"B.Jones", "", "AKB|RUN"},
	}
	planning := [][]string{
		{"employee", "client", "project", "cost", "currency"},
		{"J.Doe", "AKB", "AKB|RUN", "1000", "USD"},
		{"J.Doe", "AKB", "AKB|CHANGE|MX|FIX|CVA", "200", "ZAR"},
		{"A.Smith", "NEDBANK", "NED|X", "50", "EUR"},
	}

	sg.writeCSV("basic_elapseit.csv", timesheet)
	sg.writeCSV("basic_vision.csv", planning)
}

// GenerateNearMissScenario produces Timesheet keys one or two characters away
// from a Planning key so that hints are reported
func (sg *ScenarioGenerator) GenerateNearMissScenario() {
	fmt.Println("Generating near-miss scenario...")

	timesheet := [][]string{{"Person", "Client", "Project"}}
	planning := [][]string{{"employee", "client", "project", "cost", "currency"}}

	for i := 0; i < 10; i++ {
		person := fmt.Sprintf("P.Person%02d", i+1)
		planning = append(planning, []string{person, "SBSA", "SBSA|RUN", sg.randomAmount(100, 5000), "ZAR"})

		// Every second person is misspelt in the Timesheet
		if i%2 == 0 {
			person = sg.typo(person)
		}
		timesheet = append(timesheet, []string{person, "SBSA", "SBSA|RUN"})
	}

	sg.writeCSV("nearmiss_elapseit.csv", timesheet)
	sg.writeCSV("nearmiss_vision.csv", planning)
}

// GenerateCurrencyScenario writes Planning amounts in several currencies,
// an exchange rate file covering two month ends and a client map
func (sg *ScenarioGenerator) GenerateCurrencyScenario() {
	fmt.Println("Generating currency scenario...")

	timesheet := [][]string{{"Person", "Client", "Project"}}
	planning := [][]string{{"employee", "client", "project", "cost", "currency"}}

	for i, source := range sortedClients() {
		target := clientCodes[source]
		person := fmt.Sprintf("C.Consultant%02d", i+1)
		timesheet = append(timesheet, []string{person, source, source + "|RUN"})
		planning = append(planning, []string{
			person, target, target + "|RUN",
			sg.randomAmount(100, 10000),
			currencies[i%len(currencies)],
		})
	}
	// An unknown currency produces a conversion issue
	planning = append(planning, []string{"C.Consultant99", "AKB", "AKB|RUN", "10", "GBP"})
	// A malformed amount produces an invalid amount issue
	planning = append(planning, []string{"C.Consultant98", "AKB", "AKB|RUN", "n/a", "USD"})

	rates := [][]string{
		{"Currency", "Rate", "Date"},
		{"USD", "17.00", "2023-12-31"},
		{"EUR", "19.25", "2023-12-31"},
		{"USD", "18.50", "2024-01-31"},
		{"EUR", "20.00", "2024-01-31"},
	}

	clientMap := [][]string{{"ElapseIT", "Vision", "Override"}}
	for _, source := range sortedClients() {
		if target := clientCodes[source]; source != target {
			clientMap = append(clientMap, []string{source, target, ""})
		}
	}

	sg.writeCSV("currency_elapseit.csv", timesheet)
	sg.writeCSV("currency_vision.csv", planning)
	sg.writeCSV("fx_rates.csv", rates)
	sg.writeCSV("client_map.csv", clientMap)
}

// GeneratePerformanceScenario creates large exports where roughly 85% of the
// Timesheet records have a Planning counterpart
func (sg *ScenarioGenerator) GeneratePerformanceScenario() {
	fmt.Printf("Generating performance scenario for %d people...\n", sg.People)

	timesheet := [][]string{{"Person", "Client", "Project"}}
	planning := [][]string{{"employee", "client", "project", "cost", "currency"}}

	codes := make([]string, 0, len(clientCodes))
	for _, code := range sortedClients() {
		if code == clientCodes[code] {
			codes = append(codes, code)
		}
	}

	matched := 0
	for i := 0; i < sg.People; i++ {
		person := fmt.Sprintf("E.Employee%05d", i+1)
		client := codes[sg.rng.Intn(len(codes))]
		project := fmt.Sprintf("%s|P%03d", client, sg.rng.Intn(50))

		timesheet = append(timesheet, []string{person, client, project})

		if sg.rng.Float64() < 0.85 {
			planning = append(planning, []string{
				person, client, project,
				sg.randomAmount(500, 50000),
				currencies[sg.rng.Intn(len(currencies))],
			})
			matched++
		}
	}

	// Planning records nobody booked time against
	for i := 0; i < sg.People/10; i++ {
		planning = append(planning, []string{
			fmt.Sprintf("U.Unbooked%04d", i+1), "DSY", "DSY|BENCH",
			sg.randomAmount(500, 5000), "ZAR",
		})
	}

	sg.writeCSV("performance_elapseit.csv", timesheet)
	sg.writeCSV("performance_vision.csv", planning)

	fmt.Printf("  %d Timesheet records, %d expected composite matches\n", sg.People, matched)
}

// sortedClients keeps generation reproducible for a given seed
func sortedClients() []string {
	codes := make([]string, 0, len(clientCodes))
	for code := range clientCodes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (sg *ScenarioGenerator) randomAmount(min, max int64) string {
	amount := decimal.NewFromInt(min).
		Add(decimal.NewFromFloat(sg.rng.Float64()).Mul(decimal.NewFromInt(max - min)))
	return amount.StringFixed(2)
}

// typo swaps two adjacent letters of the value after the initial
func (sg *ScenarioGenerator) typo(value string) string {
	if len(value) < 5 {
		return strings.ToLower(value)
	}
	i := 2 + sg.rng.Intn(len(value)-3)
	b := []byte(value)
	b[i], b[i+1] = b[i+1], b[i]
	return string(b)
}

func (sg *ScenarioGenerator) writeCSV(filename string, data [][]string) {
	path := filepath.Join(sg.OutputDir, filename)
	file, err := os.Create(path)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(data); err != nil {
		log.Fatalf("Failed to write %s: %v", path, err)
	}
}

func (sg *ScenarioGenerator) writeFile(filename, content string) {
	path := filepath.Join(sg.OutputDir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		log.Fatalf("Failed to write %s: %v", path, err)
	}
}
