package schema

// BlockType is the discriminant carried by every block as "block_type".
type BlockType string

const (
	BlockTypeTask          BlockType = "task"
	BlockTypeTaskV2        BlockType = "task_v2"
	BlockTypeNavigation    BlockType = "navigation"
	BlockTypeAction        BlockType = "action"
	BlockTypeExtraction    BlockType = "extraction"
	BlockTypeLogin         BlockType = "login"
	BlockTypeValidation    BlockType = "validation"
	BlockTypeFileDownload  BlockType = "file_download"
	BlockTypeForLoop       BlockType = "for_loop"
	BlockTypeConditional   BlockType = "conditional"
	BlockTypeWait          BlockType = "wait"
	BlockTypeTextPrompt    BlockType = "text_prompt"
	BlockTypeCode          BlockType = "code"
	BlockTypeSendEmail     BlockType = "send_email"
	BlockTypeFileURLParser BlockType = "file_url_parser"
	BlockTypePDFParser     BlockType = "pdf_parser"
	BlockTypeUploadToS3    BlockType = "upload_to_s3"
	BlockTypeDownloadToS3  BlockType = "download_to_s3"
	BlockTypeFileUpload    BlockType = "file_upload"
	BlockTypeHTTPRequest   BlockType = "http_request"
	BlockTypeGotoURL       BlockType = "goto_url"
)

// AllBlockTypes lists every block kind in declaration order. Conversion
// boundaries are tested against this list.
var AllBlockTypes = []BlockType{
	BlockTypeTask, BlockTypeTaskV2, BlockTypeNavigation, BlockTypeAction,
	BlockTypeExtraction, BlockTypeLogin, BlockTypeValidation, BlockTypeFileDownload,
	BlockTypeForLoop, BlockTypeConditional, BlockTypeWait, BlockTypeTextPrompt,
	BlockTypeCode, BlockTypeSendEmail, BlockTypeFileURLParser, BlockTypePDFParser,
	BlockTypeUploadToS3, BlockTypeDownloadToS3, BlockTypeFileUpload,
	BlockTypeHTTPRequest, BlockTypeGotoURL,
}

// RunEngine selects the browser agent used by task-family blocks.
type RunEngine string

const (
	RunEngineDefault RunEngine = "skyvern-1.0"
	RunEngineV2      RunEngine = "skyvern-2.0"
	RunEngineOpenAI  RunEngine = "openai-cua"
)

// CriteriaType selects the dialect of a branch criteria expression.
type CriteriaType string

const (
	CriteriaJinja  CriteriaType = "jinja2_template"
	CriteriaCEL    CriteriaType = "cel"
	CriteriaPrompt CriteriaType = "prompt"
)

// FileType is the format parsed by a file_url_parser block.
type FileType string

const (
	FileTypeCSV   FileType = "csv"
	FileTypeExcel FileType = "excel"
	FileTypePDF   FileType = "pdf"
)

// Block is the closed set of workflow block kinds. Implementations live in
// this package only.
type Block interface {
	Type() BlockType
	Base() *BlockBase
	isBlock()
}

// BlockBase holds the fields shared by every block kind.
type BlockBase struct {
	Label             string    `json:"label"`
	BlockType         BlockType `json:"block_type"`
	ContinueOnFailure bool      `json:"continue_on_failure"`
	NextBlockLabel    *string   `json:"next_block_label"`
}

func (b *BlockBase) Base() *BlockBase { return b }
func (*BlockBase) isBlock()           {}

// TaskBlock is the general browser task: navigate, then optionally extract.
type TaskBlock struct {
	BlockBase
	URL                                string            `json:"url,omitempty"`
	Title                              string            `json:"title,omitempty"`
	NavigationGoal                     string            `json:"navigation_goal,omitempty"`
	DataExtractionGoal                 string            `json:"data_extraction_goal,omitempty"`
	DataSchema                         any               `json:"data_schema,omitempty"`
	ErrorCodeMapping                   map[string]string `json:"error_code_mapping,omitempty"`
	MaxRetries                         int               `json:"max_retries"`
	MaxStepsPerRun                     *int              `json:"max_steps_per_run,omitempty"`
	ParameterKeys                      []string          `json:"parameter_keys,omitempty"`
	CompleteOnDownload                 bool              `json:"complete_on_download"`
	DownloadSuffix                     *string           `json:"download_suffix,omitempty"`
	TOTPVerificationURL                *string           `json:"totp_verification_url,omitempty"`
	TOTPIdentifier                     *string           `json:"totp_identifier,omitempty"`
	Engine                             RunEngine         `json:"engine,omitempty"`
	CacheActions                       bool              `json:"cache_actions"`
	IncludeActionHistoryInVerification bool              `json:"include_action_history_in_verification"`
}

func (*TaskBlock) Type() BlockType { return BlockTypeTask }

// TaskV2Block is a prompt-driven task planned by the agent itself.
type TaskV2Block struct {
	BlockBase
	Prompt              string  `json:"prompt"`
	URL                 string  `json:"url,omitempty"`
	TOTPVerificationURL *string `json:"totp_verification_url,omitempty"`
	TOTPIdentifier      *string `json:"totp_identifier,omitempty"`
	MaxIterations       int     `json:"max_iterations"`
	MaxSteps            int     `json:"max_steps"`
}

func (*TaskV2Block) Type() BlockType { return BlockTypeTaskV2 }

// NavigationBlock drives the browser towards a goal without extraction.
type NavigationBlock struct {
	BlockBase
	URL                                string            `json:"url,omitempty"`
	Title                              string            `json:"title,omitempty"`
	NavigationGoal                     string            `json:"navigation_goal"`
	ErrorCodeMapping                   map[string]string `json:"error_code_mapping,omitempty"`
	MaxRetries                         int               `json:"max_retries"`
	MaxStepsPerRun                     *int              `json:"max_steps_per_run,omitempty"`
	ParameterKeys                      []string          `json:"parameter_keys,omitempty"`
	CompleteOnDownload                 bool              `json:"complete_on_download"`
	DownloadSuffix                     *string           `json:"download_suffix,omitempty"`
	TOTPVerificationURL                *string           `json:"totp_verification_url,omitempty"`
	TOTPIdentifier                     *string           `json:"totp_identifier,omitempty"`
	Engine                             RunEngine         `json:"engine,omitempty"`
	CompleteCriterion                  string            `json:"complete_criterion,omitempty"`
	TerminateCriterion                 string            `json:"terminate_criterion,omitempty"`
	IncludeActionHistoryInVerification bool              `json:"include_action_history_in_verification"`
	CacheActions                       bool              `json:"cache_actions"`
}

func (*NavigationBlock) Type() BlockType { return BlockTypeNavigation }

// ActionBlock performs a single browser action.
type ActionBlock struct {
	BlockBase
	URL                 string            `json:"url,omitempty"`
	Title               string            `json:"title,omitempty"`
	NavigationGoal      string            `json:"navigation_goal,omitempty"`
	ErrorCodeMapping    map[string]string `json:"error_code_mapping,omitempty"`
	MaxRetries          int               `json:"max_retries"`
	ParameterKeys       []string          `json:"parameter_keys,omitempty"`
	CompleteOnDownload  bool              `json:"complete_on_download"`
	DownloadSuffix      *string           `json:"download_suffix,omitempty"`
	TOTPVerificationURL *string           `json:"totp_verification_url,omitempty"`
	TOTPIdentifier      *string           `json:"totp_identifier,omitempty"`
	Engine              RunEngine         `json:"engine,omitempty"`
	CacheActions        bool              `json:"cache_actions"`
}

func (*ActionBlock) Type() BlockType { return BlockTypeAction }

// ExtractionBlock extracts structured data from the current page.
type ExtractionBlock struct {
	BlockBase
	URL                string    `json:"url,omitempty"`
	Title              string    `json:"title,omitempty"`
	DataExtractionGoal string    `json:"data_extraction_goal"`
	DataSchema         any       `json:"data_schema,omitempty"`
	MaxRetries         int       `json:"max_retries"`
	MaxStepsPerRun     *int      `json:"max_steps_per_run,omitempty"`
	ParameterKeys      []string  `json:"parameter_keys,omitempty"`
	Engine             RunEngine `json:"engine,omitempty"`
	CacheActions       bool      `json:"cache_actions"`
}

func (*ExtractionBlock) Type() BlockType { return BlockTypeExtraction }

// LoginBlock authenticates against a site using stored credentials.
type LoginBlock struct {
	BlockBase
	URL                 string            `json:"url,omitempty"`
	Title               string            `json:"title,omitempty"`
	NavigationGoal      string            `json:"navigation_goal,omitempty"`
	ErrorCodeMapping    map[string]string `json:"error_code_mapping,omitempty"`
	MaxRetries          int               `json:"max_retries"`
	MaxStepsPerRun      *int              `json:"max_steps_per_run,omitempty"`
	ParameterKeys       []string          `json:"parameter_keys,omitempty"`
	TOTPVerificationURL *string           `json:"totp_verification_url,omitempty"`
	TOTPIdentifier      *string           `json:"totp_identifier,omitempty"`
	Engine              RunEngine         `json:"engine,omitempty"`
	CompleteCriterion   string            `json:"complete_criterion,omitempty"`
	TerminateCriterion  string            `json:"terminate_criterion,omitempty"`
	CacheActions        bool              `json:"cache_actions"`
}

func (*LoginBlock) Type() BlockType { return BlockTypeLogin }

// ValidationBlock checks page state against completion/termination criteria.
type ValidationBlock struct {
	BlockBase
	CompleteCriterion  string            `json:"complete_criterion,omitempty"`
	TerminateCriterion string            `json:"terminate_criterion,omitempty"`
	ErrorCodeMapping   map[string]string `json:"error_code_mapping,omitempty"`
	ParameterKeys      []string          `json:"parameter_keys,omitempty"`
}

func (*ValidationBlock) Type() BlockType { return BlockTypeValidation }

// FileDownloadBlock navigates until a file download completes.
type FileDownloadBlock struct {
	BlockBase
	URL                 string            `json:"url,omitempty"`
	Title               string            `json:"title,omitempty"`
	NavigationGoal      string            `json:"navigation_goal"`
	ErrorCodeMapping    map[string]string `json:"error_code_mapping,omitempty"`
	MaxRetries          int               `json:"max_retries"`
	MaxStepsPerRun      *int              `json:"max_steps_per_run,omitempty"`
	ParameterKeys       []string          `json:"parameter_keys,omitempty"`
	DownloadSuffix      *string           `json:"download_suffix,omitempty"`
	TOTPVerificationURL *string           `json:"totp_verification_url,omitempty"`
	TOTPIdentifier      *string           `json:"totp_identifier,omitempty"`
	Engine              RunEngine         `json:"engine,omitempty"`
	CacheActions        bool              `json:"cache_actions"`
}

func (*FileDownloadBlock) Type() BlockType { return BlockTypeFileDownload }

// ForLoopBlock repeats its nested blocks once per item of a parameter value.
type ForLoopBlock struct {
	BlockBase
	LoopBlocks            Blocks  `json:"loop_blocks"`
	LoopOverParameterKey  string  `json:"loop_over_parameter_key,omitempty"`
	LoopVariableReference *string `json:"loop_variable_reference,omitempty"`
	CompleteIfEmpty       bool    `json:"complete_if_empty"`
}

func (*ForLoopBlock) Type() BlockType { return BlockTypeForLoop }

// BranchCriteria is the guard of a conditional branch.
type BranchCriteria struct {
	CriteriaType CriteriaType `json:"criteria_type"`
	Expression   string       `json:"expression"`
}

// BranchCondition is one ordered branch of a conditional block. NextBlockLabel
// names the first block of the branch.
type BranchCondition struct {
	ID             string          `json:"id"`
	IsDefault      bool            `json:"is_default"`
	Criteria       *BranchCriteria `json:"criteria,omitempty"`
	NextBlockLabel *string         `json:"next_block_label"`
}

// ConditionalBlock routes execution into the first branch whose criteria hold.
type ConditionalBlock struct {
	BlockBase
	BranchConditions []BranchCondition `json:"branch_conditions"`
}

func (*ConditionalBlock) Type() BlockType { return BlockTypeConditional }

// WaitBlock pauses for a fixed number of seconds.
type WaitBlock struct {
	BlockBase
	WaitSec int `json:"wait_sec"`
}

func (*WaitBlock) Type() BlockType { return BlockTypeWait }

type TextPromptBlock struct {
	BlockBase
	LLMKey        string   `json:"llm_key,omitempty"`
	Prompt        string   `json:"prompt"`
	ParameterKeys []string `json:"parameter_keys,omitempty"`
	JSONSchema    any      `json:"json_schema,omitempty"`
}

func (*TextPromptBlock) Type() BlockType { return BlockTypeTextPrompt }

type CodeBlock struct {
	BlockBase
	Code          string   `json:"code"`
	ParameterKeys []string `json:"parameter_keys,omitempty"`
}

func (*CodeBlock) Type() BlockType { return BlockTypeCode }

// SendEmailBlock sends an email through SMTP credentials referenced by
// secret parameter keys.
type SendEmailBlock struct {
	BlockBase
	SMTPHostSecretParameterKey     string   `json:"smtp_host_secret_parameter_key"`
	SMTPPortSecretParameterKey     string   `json:"smtp_port_secret_parameter_key"`
	SMTPUsernameSecretParameterKey string   `json:"smtp_username_secret_parameter_key"`
	SMTPPasswordSecretParameterKey string   `json:"smtp_password_secret_parameter_key"`
	Sender                         string   `json:"sender"`
	Recipients                     []string `json:"recipients"`
	Subject                        string   `json:"subject"`
	Body                           string   `json:"body"`
	FileAttachments                []string `json:"file_attachments,omitempty"`
}

func (*SendEmailBlock) Type() BlockType { return BlockTypeSendEmail }

type FileURLParserBlock struct {
	BlockBase
	FileURL    string   `json:"file_url"`
	FileType   FileType `json:"file_type"`
	JSONSchema any      `json:"json_schema,omitempty"`
}

func (*FileURLParserBlock) Type() BlockType { return BlockTypeFileURLParser }

type PDFParserBlock struct {
	BlockBase
	FileURL    string `json:"file_url"`
	JSONSchema any    `json:"json_schema,omitempty"`
}

func (*PDFParserBlock) Type() BlockType { return BlockTypePDFParser }

type UploadToS3Block struct {
	BlockBase
	Path string `json:"path,omitempty"`
}

func (*UploadToS3Block) Type() BlockType { return BlockTypeUploadToS3 }

type DownloadToS3Block struct {
	BlockBase
	URL string `json:"url"`
}

func (*DownloadToS3Block) Type() BlockType { return BlockTypeDownloadToS3 }

// FileUploadBlock uploads downloaded files to external storage.
type FileUploadBlock struct {
	BlockBase
	StorageType        string `json:"storage_type"`
	S3Bucket           string `json:"s3_bucket,omitempty"`
	AWSAccessKeyID     string `json:"aws_access_key_id,omitempty"`
	AWSSecretAccessKey string `json:"aws_secret_access_key,omitempty"`
	RegionName         string `json:"region_name,omitempty"`
	Path               string `json:"path,omitempty"`
}

func (*FileUploadBlock) Type() BlockType { return BlockTypeFileUpload }

// HTTPRequestBlock describes an outbound HTTP call.
type HTTPRequestBlock struct {
	BlockBase
	Method          string            `json:"method"`
	URL             string            `json:"url"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            map[string]any    `json:"body,omitempty"`
	Timeout         int               `json:"timeout"`
	FollowRedirects bool              `json:"follow_redirects"`
	ParameterKeys   []string          `json:"parameter_keys,omitempty"`
}

func (*HTTPRequestBlock) Type() BlockType { return BlockTypeHTTPRequest }

type GotoURLBlock struct {
	BlockBase
	URL string `json:"url"`
}

func (*GotoURLBlock) Type() BlockType { return BlockTypeGotoURL }

// NewBlock returns a zero-valued block of the given kind with its label and
// block_type set. Unknown kinds return an UNKNOWN_BLOCK_TYPE error.
func NewBlock(t BlockType, label string) (Block, error) {
	var b Block
	switch t {
	case BlockTypeTask:
		b = &TaskBlock{}
	case BlockTypeTaskV2:
		b = &TaskV2Block{MaxIterations: 10, MaxSteps: 25}
	case BlockTypeNavigation:
		b = &NavigationBlock{}
	case BlockTypeAction:
		b = &ActionBlock{}
	case BlockTypeExtraction:
		b = &ExtractionBlock{}
	case BlockTypeLogin:
		b = &LoginBlock{}
	case BlockTypeValidation:
		b = &ValidationBlock{}
	case BlockTypeFileDownload:
		b = &FileDownloadBlock{}
	case BlockTypeForLoop:
		b = &ForLoopBlock{}
	case BlockTypeConditional:
		b = &ConditionalBlock{}
	case BlockTypeWait:
		b = &WaitBlock{}
	case BlockTypeTextPrompt:
		b = &TextPromptBlock{}
	case BlockTypeCode:
		b = &CodeBlock{}
	case BlockTypeSendEmail:
		b = &SendEmailBlock{}
	case BlockTypeFileURLParser:
		b = &FileURLParserBlock{FileType: FileTypeCSV}
	case BlockTypePDFParser:
		b = &PDFParserBlock{}
	case BlockTypeUploadToS3:
		b = &UploadToS3Block{}
	case BlockTypeDownloadToS3:
		b = &DownloadToS3Block{}
	case BlockTypeFileUpload:
		b = &FileUploadBlock{StorageType: "s3"}
	case BlockTypeHTTPRequest:
		b = &HTTPRequestBlock{Method: "GET", Timeout: 30, FollowRedirects: true}
	case BlockTypeGotoURL:
		b = &GotoURLBlock{}
	default:
		return nil, NewErrorf(ErrCodeUnknownBlockType, "unknown block type %q", t)
	}
	base := b.Base()
	base.Label = label
	base.BlockType = t
	return b, nil
}

// StrPtr returns a pointer to s. Handy for NextBlockLabel literals.
func StrPtr(s string) *string { return &s }

// Deref returns *s, or "" when s is nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
