package model

// JudgeMode selects how contestant output is compared.
type JudgeMode string

const (
	JudgeModeExact        JudgeMode = "exact"
	JudgeModeSpecialJudge JudgeMode = "special-judge"
)

// CaseFile names one input/expected-output pair relative to the problem data dir.
type CaseFile struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
}

// JudgeConfig is the per-problem config.yaml.
type JudgeConfig struct {
	Cases             []CaseFile         `yaml:"cases"`
	Mode              JudgeMode          `yaml:"mode"`
	Checker           string             `yaml:"checker"`
	TimeMultipliers   map[string]float64 `yaml:"timeMultipliers"`
	MemoryMultipliers map[string]float64 `yaml:"memoryMultipliers"`
}

// TestCase is a resolved case with its contents loaded.
type TestCase struct {
	Index    int
	Name     string
	Input    string
	Expected string
}
