package models

import "time"

type EntryKind string

const (
	EntryFile EntryKind = "file"
	EntryDir  EntryKind = "dir"
)

// TreeEntry is one object of a repository tree at a fixed revision.
type TreeEntry struct {
	Path      string    `json:"path"`
	Kind      EntryKind `json:"kind"`
	ContentID string    `json:"content_id"`
	SizeBytes int64     `json:"size_bytes,omitempty"`
}

type CandidateFile struct {
	Path      string `json:"path"`
	Tier      int    `json:"tier"`
	Weight    int    `json:"weight"`
	SizeBytes int64  `json:"size"`
	Reason    string `json:"reason"`
}

type SelectionStats struct {
	TotalCandidates int   `json:"total_candidates"`
	SelectedCount   int   `json:"selected_count"`
	EstimatedChars  int64 `json:"estimated_chars"`
}

type SelectionResult struct {
	Selected      []CandidateFile `json:"selected"`
	DetectedStack []string        `json:"detected_stack"`
	Truncated     bool            `json:"truncated"`
	Warnings      []string        `json:"warnings"`
	Stats         SelectionStats  `json:"stats"`
}

type Chunk struct {
	Path       string `json:"path"`
	RevisionID string `json:"sha"`
	LineStart  int    `json:"line_start"`
	LineEnd    int    `json:"line_end"`
	Content    string `json:"content"`
	CitationID string `json:"citation_id"`
}

type FileDigest struct {
	Path       string `json:"path"`
	RevisionID string `json:"sha"`
	SizeBytes  int64  `json:"size"`
	LineCount  int    `json:"line_count"`
	ChunkCount int    `json:"chunks"`
}

type FetchStats struct {
	TotalFiles     int `json:"total_files"`
	TotalChunks    int `json:"total_chunks"`
	TotalChars     int `json:"total_chars"`
	TruncatedFiles int `json:"truncated_files"`
}

type FetchResult struct {
	Chunks   []Chunk      `json:"chunks"`
	Digests  []FileDigest `json:"digests"`
	Warnings []string     `json:"warnings"`
	Stats    FetchStats   `json:"stats"`
}

type FileSummary struct {
	Path        string   `json:"path"`
	CitationID  string   `json:"citation_id"`
	Summary     string   `json:"summary"`
	KeyFindings []string `json:"key_findings"`
}

// AnalysisContext identifies the repository revision being assessed.
type AnalysisContext struct {
	RepoURL       string   `json:"repo_url"`
	Owner         string   `json:"owner"`
	Repo          string   `json:"repo"`
	RevisionID    string   `json:"commit_sha"`
	DefaultBranch string   `json:"default_branch"`
	DetectedStack []string `json:"detected_stack"`
	AnalyzedPaths []string `json:"analyzed_paths"`
}

type Classification string

const (
	ClassNotAgentic         Classification = "A_NOT_AGENTIC"
	ClassLLMAssist          Classification = "B_LLM_ASSIST"
	ClassTaskAgents         Classification = "C_TASK_AGENTS"
	ClassAgentOrchestration Classification = "D_AGENT_ORCHESTRATION"
)

var Classifications = []Classification{
	ClassNotAgentic, ClassLLMAssist, ClassTaskAgents, ClassAgentOrchestration,
}

type Recommendation string

const (
	RecRulesAutomation Recommendation = "RULES_AUTOMATION"
	RecLLMAssist       Recommendation = "LLM_ASSIST"
	RecTaskAgent       Recommendation = "TASK_AGENT"
	RecHuman           Recommendation = "HUMAN"
)

var Recommendations = []Recommendation{
	RecRulesAutomation, RecLLMAssist, RecTaskAgent, RecHuman,
}

type Mode string

const (
	ModeStatic        Mode = "STATIC"
	ModeAdaptive      Mode = "ADAPTIVE"
	ModeCollaborative Mode = "COLLABORATIVE"
)

var Modes = []Mode{ModeStatic, ModeAdaptive, ModeCollaborative}

type ContentCaps struct {
	MaxFiles      int  `json:"max_files,omitempty"`
	MaxTotalChars int  `json:"max_total_chars,omitempty"`
	Truncated     bool `json:"truncated,omitempty"`
}

type RubricMeta struct {
	RepoURL       string       `json:"repo_url"`
	Owner         string       `json:"owner"`
	Repo          string       `json:"repo"`
	RevisionID    string       `json:"commit_sha"`
	DefaultBranch string       `json:"default_branch"`
	DetectedStack []string     `json:"detected_stack,omitempty"`
	AnalyzedPaths []string     `json:"analyzed_paths"`
	ContentCaps   *ContentCaps `json:"content_caps,omitempty"`
}

type RubricScores struct {
	Variability          int     `json:"variability"`
	StrategicImportance  int     `json:"strategic_importance"`
	OperationalImpact    int     `json:"operational_impact"`
	IntegrationReadiness int     `json:"integration_readiness"`
	BlastRadiusRisk      int     `json:"blast_radius_risk"`
	Confidence           float64 `json:"confidence"`
}

type KPIs struct {
	Efficiency     []string `json:"efficiency"`
	Quality        []string `json:"quality"`
	BusinessImpact []string `json:"business_impact"`
	RiskCompliance []string `json:"risk_compliance"`
}

type RubricOutcomes struct {
	EnterpriseOutcome string `json:"enterprise_outcome"`
	WorkflowOutcome   string `json:"workflow_outcome"`
	KPIs              KPIs   `json:"kpis"`
}

type TaskScores struct {
	Variability int `json:"variability"`
	Criticality int `json:"criticality"`
	Risk        int `json:"risk"`
}

type Task struct {
	TaskID         string         `json:"task_id"`
	Name           string         `json:"name"`
	CurrentActor   string         `json:"current_actor"`
	Inputs         []string       `json:"inputs"`
	Outputs        []string       `json:"outputs"`
	Scores         TaskScores     `json:"scores"`
	Recommendation Recommendation `json:"recommendation"`
	Rationale      string         `json:"rationale"`
	Citations      []string       `json:"citations"`
}

type ExecutionMode struct {
	TaskID      string   `json:"task_id"`
	Mode        Mode     `json:"mode"`
	Why         string   `json:"why"`
	Constraints []string `json:"constraints"`
	Citations   []string `json:"citations"`
}

type Guardrails struct {
	Strategic      []string `json:"strategic"`
	Operational    []string `json:"operational"`
	Implementation []string `json:"implementation"`
}

type Pilot struct {
	RecommendedFirstTaskID string   `json:"recommended_first_task_id"`
	Baseline               []string `json:"baseline"`
	SuccessThresholds      []string `json:"success_thresholds"`
	SandboxPlan            []string `json:"sandbox_plan"`
	RollbackPlan           []string `json:"rollback_plan"`
	Monitoring             []string `json:"monitoring"`
}

type Risks struct {
	KeyRisks    []string `json:"key_risks"`
	Unknowns    []string `json:"unknowns"`
	Assumptions []string `json:"assumptions"`
}

// Citation addresses a line range of a file at a revision. URL is computed
// from the repository identity and is never taken from model output.
type Citation struct {
	ID         string `json:"id"`
	Path       string `json:"path"`
	RevisionID string `json:"commit_sha"`
	LineStart  int    `json:"line_start"`
	LineEnd    int    `json:"line_end"`
	URL        string `json:"url"`
	Note       string `json:"note,omitempty"`
}

type RubricOutput struct {
	Meta           RubricMeta      `json:"meta"`
	Classification Classification  `json:"classification"`
	Scores         RubricScores    `json:"scores"`
	Outcomes       RubricOutcomes  `json:"outcomes"`
	Tasks          []Task          `json:"tasks"`
	ExecutionModes []ExecutionMode `json:"execution_modes"`
	Guardrails     Guardrails      `json:"guardrails"`
	Pilot          Pilot           `json:"pilot"`
	Risks          Risks           `json:"risks"`
	Citations      []Citation      `json:"citations"`
}

// Assessment is a persisted rubric for one repository revision.
type Assessment struct {
	ID            string       `json:"id"`
	RepoURL       string       `json:"repo_url"`
	Owner         string       `json:"owner"`
	Name          string       `json:"name"`
	DefaultBranch string       `json:"default_branch"`
	RevisionID    string       `json:"commit_sha"`
	SelectedPaths []string     `json:"selected_paths"`
	Digests       []FileDigest `json:"file_digests"`
	Rubric        RubricOutput `json:"rubric"`
	CreatedAt     time.Time    `json:"created_at"`
}

// AssessmentSummary is the list view of an assessment.
type AssessmentSummary struct {
	ID             string         `json:"id"`
	RepoURL        string         `json:"repo_url"`
	Owner          string         `json:"owner"`
	Name           string         `json:"name"`
	RevisionID     string         `json:"commit_sha"`
	Classification Classification `json:"classification"`
	CreatedAt      time.Time      `json:"created_at"`
}
