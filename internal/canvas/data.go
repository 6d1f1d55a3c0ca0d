package canvas

import (
	"encoding/json"
	"fmt"

	"github.com/rendis/blockflow/pkg/schema"
)

// NodeData is the typed payload of a node. Values are stored by value so a
// copied Node never aliases another node's fields (slices excepted, which
// the converter always copies).
type NodeData interface {
	// Block returns the fields shared by every block node. Utility nodes
	// return the zero value.
	Block() BlockData
	// WithBlock returns a copy of the data with the shared fields replaced.
	WithBlock(BlockData) NodeData
}

// BlockData mirrors the common block fields plus editor-only state.
type BlockData struct {
	Label             string `json:"label"`
	ContinueOnFailure bool   `json:"continueOnFailure"`
	Editable          bool   `json:"editable"`
}

// StartData marks a scope entry. The top-level entry carries the workflow
// settings panel.
type StartData struct {
	WithWorkflowSettings bool `json:"withWorkflowSettings"`
}

func (StartData) Block() BlockData               { return BlockData{} }
func (d StartData) WithBlock(BlockData) NodeData { return d }

// NodeAdderData marks a scope's append point.
type NodeAdderData struct{}

func (NodeAdderData) Block() BlockData               { return BlockData{} }
func (d NodeAdderData) WithBlock(BlockData) NodeData { return d }

// TaskData backs every browser-task node: task, navigation, action,
// extraction, login, validation, and file_download. Each kind reads only the
// fields its block carries. JSON-valued fields are editable strings.
type TaskData struct {
	BlockData
	URL                                string   `json:"url"`
	Title                              string   `json:"title"`
	NavigationGoal                     string   `json:"navigationGoal"`
	DataExtractionGoal                 string   `json:"dataExtractionGoal"`
	DataSchema                         string   `json:"dataSchema"`
	ErrorCodeMapping                   string   `json:"errorCodeMapping"`
	MaxRetries                         int      `json:"maxRetries"`
	MaxStepsOverride                   *int     `json:"maxStepsOverride"`
	ParameterKeys                      []string `json:"parameterKeys"`
	CompleteOnDownload                 bool     `json:"allowDownloads"`
	DownloadSuffix                     *string  `json:"downloadSuffix"`
	TOTPVerificationURL                *string  `json:"totpVerificationUrl"`
	TOTPIdentifier                     *string  `json:"totpIdentifier"`
	Engine                             string   `json:"engine"`
	CacheActions                       bool     `json:"cacheActions"`
	IncludeActionHistoryInVerification bool     `json:"includeActionHistoryInVerification"`
	CompleteCriterion                  string   `json:"completeCriterion"`
	TerminateCriterion                 string   `json:"terminateCriterion"`
}

func (d TaskData) Block() BlockData               { return d.BlockData }
func (d TaskData) WithBlock(b BlockData) NodeData { d.BlockData = b; return d }

type TaskV2Data struct {
	BlockData
	Prompt              string  `json:"prompt"`
	URL                 string  `json:"url"`
	TOTPVerificationURL *string `json:"totpVerificationUrl"`
	TOTPIdentifier      *string `json:"totpIdentifier"`
	MaxIterations       int     `json:"maxIterations"`
	MaxSteps            int     `json:"maxSteps"`
}

func (d TaskV2Data) Block() BlockData               { return d.BlockData }
func (d TaskV2Data) WithBlock(b BlockData) NodeData { d.BlockData = b; return d }

// LoopData backs for_loop container nodes.
type LoopData struct {
	BlockData
	LoopValue             string  `json:"loopValue"`
	LoopVariableReference *string `json:"loopVariableReference"`
	CompleteIfEmpty       bool    `json:"completeIfEmpty"`
	Collapsed             bool    `json:"collapsed"`
}

func (d LoopData) Block() BlockData               { return d.BlockData }
func (d LoopData) WithBlock(b BlockData) NodeData { d.BlockData = b; return d }

// CriteriaData is the editable guard of a branch.
type CriteriaData struct {
	CriteriaType string `json:"criteriaType"`
	Expression   string `json:"expression"`
}

// BranchData is one branch of a conditional node. The branch's first block
// is not stored here; it is read from the branch-tagged entry edge.
type BranchData struct {
	ID        string        `json:"id"`
	IsDefault bool          `json:"isDefault"`
	Criteria  *CriteriaData `json:"criteria"`
}

// ConditionalData backs conditional container nodes.
type ConditionalData struct {
	BlockData
	Branches       []BranchData `json:"branches"`
	ActiveBranchID string       `json:"activeBranchId"`
	Collapsed      bool         `json:"collapsed"`
}

func (d ConditionalData) Block() BlockData               { return d.BlockData }
func (d ConditionalData) WithBlock(b BlockData) NodeData { d.BlockData = b; return d }

// ActiveBranch returns the selected branch id: the explicit selection when it
// names an existing branch, else the first declared branch, else the branch
// flagged default.
func (d ConditionalData) ActiveBranch() string {
	for _, b := range d.Branches {
		if d.ActiveBranchID != "" && b.ID == d.ActiveBranchID {
			return b.ID
		}
	}
	if len(d.Branches) > 0 && d.Branches[0].ID != "" {
		return d.Branches[0].ID
	}
	for _, b := range d.Branches {
		if b.IsDefault {
			return b.ID
		}
	}
	return ""
}

type WaitData struct {
	BlockData
	WaitInSeconds int `json:"waitInSeconds"`
}

func (d WaitData) Block() BlockData               { return d.BlockData }
func (d WaitData) WithBlock(b BlockData) NodeData { d.BlockData = b; return d }

type TextPromptData struct {
	BlockData
	LLMKey        string   `json:"llmKey"`
	Prompt        string   `json:"prompt"`
	ParameterKeys []string `json:"parameterKeys"`
	JSONSchema    string   `json:"jsonSchema"`
}

func (d TextPromptData) Block() BlockData               { return d.BlockData }
func (d TextPromptData) WithBlock(b BlockData) NodeData { d.BlockData = b; return d }

type CodeData struct {
	BlockData
	Code          string   `json:"code"`
	ParameterKeys []string `json:"parameterKeys"`
}

func (d CodeData) Block() BlockData               { return d.BlockData }
func (d CodeData) WithBlock(b BlockData) NodeData { d.BlockData = b; return d }

type SendEmailData struct {
	BlockData
	SMTPHostSecretParameterKey     string   `json:"smtpHostSecretParameterKey"`
	SMTPPortSecretParameterKey     string   `json:"smtpPortSecretParameterKey"`
	SMTPUsernameSecretParameterKey string   `json:"smtpUsernameSecretParameterKey"`
	SMTPPasswordSecretParameterKey string   `json:"smtpPasswordSecretParameterKey"`
	Sender                         string   `json:"sender"`
	Recipients                     []string `json:"recipients"`
	Subject                        string   `json:"subject"`
	Body                           string   `json:"body"`
	FileAttachments                []string `json:"fileAttachments"`
}

func (d SendEmailData) Block() BlockData               { return d.BlockData }
func (d SendEmailData) WithBlock(b BlockData) NodeData { d.BlockData = b; return d }

// FileParserData backs file_url_parser and pdf_parser nodes.
type FileParserData struct {
	BlockData
	FileURL    string `json:"fileUrl"`
	FileType   string `json:"fileType"`
	JSONSchema string `json:"jsonSchema"`
}

func (d FileParserData) Block() BlockData               { return d.BlockData }
func (d FileParserData) WithBlock(b BlockData) NodeData { d.BlockData = b; return d }

// StorageData backs upload_to_s3, download_to_s3, and file_upload nodes.
type StorageData struct {
	BlockData
	Path               string `json:"path"`
	URL                string `json:"url"`
	StorageType        string `json:"storageType"`
	S3Bucket           string `json:"s3Bucket"`
	AWSAccessKeyID     string `json:"awsAccessKeyId"`
	AWSSecretAccessKey string `json:"awsSecretAccessKey"`
	RegionName         string `json:"regionName"`
}

func (d StorageData) Block() BlockData               { return d.BlockData }
func (d StorageData) WithBlock(b BlockData) NodeData { d.BlockData = b; return d }

type HTTPRequestData struct {
	BlockData
	Method          string   `json:"method"`
	URL             string   `json:"url"`
	Headers         string   `json:"headers"`
	Body            string   `json:"body"`
	Timeout         int      `json:"timeout"`
	FollowRedirects bool     `json:"followRedirects"`
	ParameterKeys   []string `json:"parameterKeys"`
}

func (d HTTPRequestData) Block() BlockData               { return d.BlockData }
func (d HTTPRequestData) WithBlock(b BlockData) NodeData { d.BlockData = b; return d }

type URLData struct {
	BlockData
	URL string `json:"url"`
}

func (d URLData) Block() BlockData               { return d.BlockData }
func (d URLData) WithBlock(b BlockData) NodeData { d.BlockData = b; return d }

// DecodeData unmarshals a node payload into the data type registered for t.
func DecodeData(t NodeType, raw json.RawMessage) (NodeData, error) {
	switch t {
	case NodeTypeStart:
		return decodeInto[StartData](raw)
	case NodeTypeNodeAdder:
		return decodeInto[NodeAdderData](raw)
	}
	switch schema.BlockType(t) {
	case schema.BlockTypeTask, schema.BlockTypeNavigation, schema.BlockTypeAction,
		schema.BlockTypeExtraction, schema.BlockTypeLogin, schema.BlockTypeValidation,
		schema.BlockTypeFileDownload:
		return decodeInto[TaskData](raw)
	case schema.BlockTypeTaskV2:
		return decodeInto[TaskV2Data](raw)
	case schema.BlockTypeForLoop:
		return decodeInto[LoopData](raw)
	case schema.BlockTypeConditional:
		return decodeInto[ConditionalData](raw)
	case schema.BlockTypeWait:
		return decodeInto[WaitData](raw)
	case schema.BlockTypeTextPrompt:
		return decodeInto[TextPromptData](raw)
	case schema.BlockTypeCode:
		return decodeInto[CodeData](raw)
	case schema.BlockTypeSendEmail:
		return decodeInto[SendEmailData](raw)
	case schema.BlockTypeFileURLParser, schema.BlockTypePDFParser:
		return decodeInto[FileParserData](raw)
	case schema.BlockTypeUploadToS3, schema.BlockTypeDownloadToS3, schema.BlockTypeFileUpload:
		return decodeInto[StorageData](raw)
	case schema.BlockTypeHTTPRequest:
		return decodeInto[HTTPRequestData](raw)
	case schema.BlockTypeGotoURL:
		return decodeInto[URLData](raw)
	}
	return nil, schema.NewErrorf(schema.ErrCodeUnknownBlockType, "unknown node type %q", t)
}

func decodeInto[T NodeData](raw json.RawMessage) (NodeData, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}
