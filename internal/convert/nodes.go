package convert

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/rendis/blockflow/internal/canvas"
	"github.com/rendis/blockflow/pkg/schema"
)

// nullJSON is stored on the node when an optional JSON field is absent, so
// "no schema" stays distinguishable from an empty object.
const nullJSON = "null"

// emptyObject is the editable default for HTTP headers and body.
const emptyObject = "{}"

// Links carries the chain references of a block node. They live on edges,
// not in node data, and are resolved by ResolveLinks.
type Links struct {
	Next *string
	// Branches maps a conditional's branch id to the label of the branch's
	// first block.
	Branches map[string]*string
}

// ToNode converts a block into a node placed in parentID's scope. Loop bodies
// and branch membership are not handled here; ToGraph builds those.
func ToNode(b schema.Block, id, parentID string) canvas.Node {
	base := b.Base()
	bd := canvas.BlockData{
		Label:             base.Label,
		ContinueOnFailure: base.ContinueOnFailure,
		Editable:          true,
	}
	return canvas.Node{
		ID:       id,
		Type:     canvas.BlockNodeType(b.Type()),
		ParentID: parentID,
		Data:     blockToData(b, bd),
	}
}

func blockToData(b schema.Block, bd canvas.BlockData) canvas.NodeData {
	switch v := b.(type) {
	case *schema.TaskBlock:
		return canvas.TaskData{
			BlockData:                          bd,
			URL:                                v.URL,
			Title:                              v.Title,
			NavigationGoal:                     v.NavigationGoal,
			DataExtractionGoal:                 v.DataExtractionGoal,
			DataSchema:                         jsonField(v.DataSchema),
			ErrorCodeMapping:                   mappingField(v.ErrorCodeMapping),
			MaxRetries:                         v.MaxRetries,
			MaxStepsOverride:                   clonePtr(v.MaxStepsPerRun),
			ParameterKeys:                      slices.Clone(v.ParameterKeys),
			CompleteOnDownload:                 v.CompleteOnDownload,
			DownloadSuffix:                     clonePtr(v.DownloadSuffix),
			TOTPVerificationURL:                clonePtr(v.TOTPVerificationURL),
			TOTPIdentifier:                     clonePtr(v.TOTPIdentifier),
			Engine:                             string(v.Engine),
			CacheActions:                       v.CacheActions,
			IncludeActionHistoryInVerification: v.IncludeActionHistoryInVerification,
		}
	case *schema.TaskV2Block:
		return canvas.TaskV2Data{
			BlockData:           bd,
			Prompt:              v.Prompt,
			URL:                 v.URL,
			TOTPVerificationURL: clonePtr(v.TOTPVerificationURL),
			TOTPIdentifier:      clonePtr(v.TOTPIdentifier),
			MaxIterations:       v.MaxIterations,
			MaxSteps:            v.MaxSteps,
		}
	case *schema.NavigationBlock:
		return canvas.TaskData{
			BlockData:                          bd,
			URL:                                v.URL,
			Title:                              v.Title,
			NavigationGoal:                     v.NavigationGoal,
			DataSchema:                         nullJSON,
			ErrorCodeMapping:                   mappingField(v.ErrorCodeMapping),
			MaxRetries:                         v.MaxRetries,
			MaxStepsOverride:                   clonePtr(v.MaxStepsPerRun),
			ParameterKeys:                      slices.Clone(v.ParameterKeys),
			CompleteOnDownload:                 v.CompleteOnDownload,
			DownloadSuffix:                     clonePtr(v.DownloadSuffix),
			TOTPVerificationURL:                clonePtr(v.TOTPVerificationURL),
			TOTPIdentifier:                     clonePtr(v.TOTPIdentifier),
			Engine:                             string(v.Engine),
			CompleteCriterion:                  v.CompleteCriterion,
			TerminateCriterion:                 v.TerminateCriterion,
			IncludeActionHistoryInVerification: v.IncludeActionHistoryInVerification,
			CacheActions:                       v.CacheActions,
		}
	case *schema.ActionBlock:
		return canvas.TaskData{
			BlockData:           bd,
			URL:                 v.URL,
			Title:               v.Title,
			NavigationGoal:      v.NavigationGoal,
			DataSchema:          nullJSON,
			ErrorCodeMapping:    mappingField(v.ErrorCodeMapping),
			MaxRetries:          v.MaxRetries,
			ParameterKeys:       slices.Clone(v.ParameterKeys),
			CompleteOnDownload:  v.CompleteOnDownload,
			DownloadSuffix:      clonePtr(v.DownloadSuffix),
			TOTPVerificationURL: clonePtr(v.TOTPVerificationURL),
			TOTPIdentifier:      clonePtr(v.TOTPIdentifier),
			Engine:              string(v.Engine),
			CacheActions:        v.CacheActions,
		}
	case *schema.ExtractionBlock:
		return canvas.TaskData{
			BlockData:          bd,
			URL:                v.URL,
			Title:              v.Title,
			DataExtractionGoal: v.DataExtractionGoal,
			DataSchema:         jsonField(v.DataSchema),
			ErrorCodeMapping:   nullJSON,
			MaxRetries:         v.MaxRetries,
			MaxStepsOverride:   clonePtr(v.MaxStepsPerRun),
			ParameterKeys:      slices.Clone(v.ParameterKeys),
			Engine:             string(v.Engine),
			CacheActions:       v.CacheActions,
		}
	case *schema.LoginBlock:
		return canvas.TaskData{
			BlockData:           bd,
			URL:                 v.URL,
			Title:               v.Title,
			NavigationGoal:      v.NavigationGoal,
			DataSchema:          nullJSON,
			ErrorCodeMapping:    mappingField(v.ErrorCodeMapping),
			MaxRetries:          v.MaxRetries,
			MaxStepsOverride:    clonePtr(v.MaxStepsPerRun),
			ParameterKeys:       slices.Clone(v.ParameterKeys),
			TOTPVerificationURL: clonePtr(v.TOTPVerificationURL),
			TOTPIdentifier:      clonePtr(v.TOTPIdentifier),
			Engine:              string(v.Engine),
			CompleteCriterion:   v.CompleteCriterion,
			TerminateCriterion:  v.TerminateCriterion,
			CacheActions:        v.CacheActions,
		}
	case *schema.ValidationBlock:
		return canvas.TaskData{
			BlockData:          bd,
			DataSchema:         nullJSON,
			ErrorCodeMapping:   mappingField(v.ErrorCodeMapping),
			ParameterKeys:      slices.Clone(v.ParameterKeys),
			CompleteCriterion:  v.CompleteCriterion,
			TerminateCriterion: v.TerminateCriterion,
		}
	case *schema.FileDownloadBlock:
		return canvas.TaskData{
			BlockData:           bd,
			URL:                 v.URL,
			Title:               v.Title,
			NavigationGoal:      v.NavigationGoal,
			DataSchema:          nullJSON,
			ErrorCodeMapping:    mappingField(v.ErrorCodeMapping),
			MaxRetries:          v.MaxRetries,
			MaxStepsOverride:    clonePtr(v.MaxStepsPerRun),
			ParameterKeys:       slices.Clone(v.ParameterKeys),
			DownloadSuffix:      clonePtr(v.DownloadSuffix),
			TOTPVerificationURL: clonePtr(v.TOTPVerificationURL),
			TOTPIdentifier:      clonePtr(v.TOTPIdentifier),
			Engine:              string(v.Engine),
			CacheActions:        v.CacheActions,
		}
	case *schema.ForLoopBlock:
		return canvas.LoopData{
			BlockData:             bd,
			LoopValue:             v.LoopOverParameterKey,
			LoopVariableReference: clonePtr(v.LoopVariableReference),
			CompleteIfEmpty:       v.CompleteIfEmpty,
		}
	case *schema.ConditionalBlock:
		cd := canvas.ConditionalData{BlockData: bd}
		for _, bc := range v.BranchConditions {
			br := canvas.BranchData{ID: bc.ID, IsDefault: bc.IsDefault}
			if bc.Criteria != nil {
				br.Criteria = &canvas.CriteriaData{
					CriteriaType: string(bc.Criteria.CriteriaType),
					Expression:   bc.Criteria.Expression,
				}
			}
			cd.Branches = append(cd.Branches, br)
		}
		cd.ActiveBranchID = cd.ActiveBranch()
		return cd
	case *schema.WaitBlock:
		return canvas.WaitData{BlockData: bd, WaitInSeconds: v.WaitSec}
	case *schema.TextPromptBlock:
		return canvas.TextPromptData{
			BlockData:     bd,
			LLMKey:        v.LLMKey,
			Prompt:        v.Prompt,
			ParameterKeys: slices.Clone(v.ParameterKeys),
			JSONSchema:    jsonField(v.JSONSchema),
		}
	case *schema.CodeBlock:
		return canvas.CodeData{BlockData: bd, Code: v.Code, ParameterKeys: slices.Clone(v.ParameterKeys)}
	case *schema.SendEmailBlock:
		return canvas.SendEmailData{
			BlockData:                      bd,
			SMTPHostSecretParameterKey:     v.SMTPHostSecretParameterKey,
			SMTPPortSecretParameterKey:     v.SMTPPortSecretParameterKey,
			SMTPUsernameSecretParameterKey: v.SMTPUsernameSecretParameterKey,
			SMTPPasswordSecretParameterKey: v.SMTPPasswordSecretParameterKey,
			Sender:                         v.Sender,
			Recipients:                     slices.Clone(v.Recipients),
			Subject:                        v.Subject,
			Body:                           v.Body,
			FileAttachments:                slices.Clone(v.FileAttachments),
		}
	case *schema.FileURLParserBlock:
		return canvas.FileParserData{
			BlockData:  bd,
			FileURL:    v.FileURL,
			FileType:   string(v.FileType),
			JSONSchema: jsonField(v.JSONSchema),
		}
	case *schema.PDFParserBlock:
		return canvas.FileParserData{
			BlockData:  bd,
			FileURL:    v.FileURL,
			FileType:   string(schema.FileTypePDF),
			JSONSchema: jsonField(v.JSONSchema),
		}
	case *schema.UploadToS3Block:
		return canvas.StorageData{BlockData: bd, Path: v.Path}
	case *schema.DownloadToS3Block:
		return canvas.StorageData{BlockData: bd, URL: v.URL}
	case *schema.FileUploadBlock:
		return canvas.StorageData{
			BlockData:          bd,
			Path:               v.Path,
			StorageType:        v.StorageType,
			S3Bucket:           v.S3Bucket,
			AWSAccessKeyID:     v.AWSAccessKeyID,
			AWSSecretAccessKey: v.AWSSecretAccessKey,
			RegionName:         v.RegionName,
		}
	case *schema.HTTPRequestBlock:
		headers := emptyObject
		if len(v.Headers) > 0 {
			headers = jsonField(v.Headers)
		}
		body := emptyObject
		if len(v.Body) > 0 {
			body = jsonField(v.Body)
		}
		return canvas.HTTPRequestData{
			BlockData:       bd,
			Method:          v.Method,
			URL:             v.URL,
			Headers:         headers,
			Body:            body,
			Timeout:         v.Timeout,
			FollowRedirects: v.FollowRedirects,
			ParameterKeys:   slices.Clone(v.ParameterKeys),
		}
	case *schema.GotoURLBlock:
		return canvas.URLData{BlockData: bd, URL: v.URL}
	}
	panic(fmt.Sprintf("convert: unhandled block type %T", b))
}

// ToBlock converts a block node back into its block. Loop bodies are left
// empty; ToDefinition fills them. Malformed JSON in editable fields is
// reported as an issue and the field is dropped. A node type with no block
// kind is a hard failure.
func ToBlock(n canvas.Node, links Links) (schema.Block, []schema.ValidationIssue, error) {
	if n.IsUtility() {
		return nil, nil, schema.NewErrorf(schema.ErrCodeInvalidGraph, "utility node %q has no block", n.ID)
	}
	label := n.Label()
	b, err := schema.NewBlock(schema.BlockType(n.Type), label)
	if err != nil {
		return nil, nil, err
	}
	if n.Data == nil {
		return nil, nil, schema.NewErrorf(schema.ErrCodeInvalidGraph, "node %q has no data", n.ID).WithLabel(label)
	}

	p := fieldParser{label: label}
	if err := fillBlock(b, n.Data, links, &p); err != nil {
		return nil, nil, err
	}

	base := b.Base()
	base.ContinueOnFailure = n.Data.Block().ContinueOnFailure
	base.NextBlockLabel = clonePtr(links.Next)
	return b, p.issues, nil
}

func fillBlock(b schema.Block, d canvas.NodeData, links Links, p *fieldParser) error {
	mismatch := func() error {
		return schema.NewErrorf(schema.ErrCodeInvalidGraph, "node data %T does not match block type %s", d, b.Type()).
			WithLabel(b.Base().Label)
	}

	switch v := b.(type) {
	case *schema.TaskBlock:
		t, ok := d.(canvas.TaskData)
		if !ok {
			return mismatch()
		}
		v.URL = t.URL
		v.Title = t.Title
		v.NavigationGoal = t.NavigationGoal
		v.DataExtractionGoal = t.DataExtractionGoal
		v.DataSchema = p.any("data_schema", t.DataSchema)
		v.ErrorCodeMapping = p.mapping("error_code_mapping", t.ErrorCodeMapping)
		v.MaxRetries = t.MaxRetries
		v.MaxStepsPerRun = clonePtr(t.MaxStepsOverride)
		v.ParameterKeys = slices.Clone(t.ParameterKeys)
		v.CompleteOnDownload = t.CompleteOnDownload
		v.DownloadSuffix = clonePtr(t.DownloadSuffix)
		v.TOTPVerificationURL = clonePtr(t.TOTPVerificationURL)
		v.TOTPIdentifier = clonePtr(t.TOTPIdentifier)
		v.Engine = schema.RunEngine(t.Engine)
		v.CacheActions = t.CacheActions
		v.IncludeActionHistoryInVerification = t.IncludeActionHistoryInVerification
	case *schema.TaskV2Block:
		t, ok := d.(canvas.TaskV2Data)
		if !ok {
			return mismatch()
		}
		v.Prompt = t.Prompt
		v.URL = t.URL
		v.TOTPVerificationURL = clonePtr(t.TOTPVerificationURL)
		v.TOTPIdentifier = clonePtr(t.TOTPIdentifier)
		v.MaxIterations = t.MaxIterations
		v.MaxSteps = t.MaxSteps
	case *schema.NavigationBlock:
		t, ok := d.(canvas.TaskData)
		if !ok {
			return mismatch()
		}
		v.URL = t.URL
		v.Title = t.Title
		v.NavigationGoal = t.NavigationGoal
		v.ErrorCodeMapping = p.mapping("error_code_mapping", t.ErrorCodeMapping)
		v.MaxRetries = t.MaxRetries
		v.MaxStepsPerRun = clonePtr(t.MaxStepsOverride)
		v.ParameterKeys = slices.Clone(t.ParameterKeys)
		v.CompleteOnDownload = t.CompleteOnDownload
		v.DownloadSuffix = clonePtr(t.DownloadSuffix)
		v.TOTPVerificationURL = clonePtr(t.TOTPVerificationURL)
		v.TOTPIdentifier = clonePtr(t.TOTPIdentifier)
		v.Engine = schema.RunEngine(t.Engine)
		v.CompleteCriterion = t.CompleteCriterion
		v.TerminateCriterion = t.TerminateCriterion
		v.IncludeActionHistoryInVerification = t.IncludeActionHistoryInVerification
		v.CacheActions = t.CacheActions
	case *schema.ActionBlock:
		t, ok := d.(canvas.TaskData)
		if !ok {
			return mismatch()
		}
		v.URL = t.URL
		v.Title = t.Title
		v.NavigationGoal = t.NavigationGoal
		v.ErrorCodeMapping = p.mapping("error_code_mapping", t.ErrorCodeMapping)
		v.MaxRetries = t.MaxRetries
		v.ParameterKeys = slices.Clone(t.ParameterKeys)
		v.CompleteOnDownload = t.CompleteOnDownload
		v.DownloadSuffix = clonePtr(t.DownloadSuffix)
		v.TOTPVerificationURL = clonePtr(t.TOTPVerificationURL)
		v.TOTPIdentifier = clonePtr(t.TOTPIdentifier)
		v.Engine = schema.RunEngine(t.Engine)
		v.CacheActions = t.CacheActions
	case *schema.ExtractionBlock:
		t, ok := d.(canvas.TaskData)
		if !ok {
			return mismatch()
		}
		v.URL = t.URL
		v.Title = t.Title
		v.DataExtractionGoal = t.DataExtractionGoal
		v.DataSchema = p.any("data_schema", t.DataSchema)
		v.MaxRetries = t.MaxRetries
		v.MaxStepsPerRun = clonePtr(t.MaxStepsOverride)
		v.ParameterKeys = slices.Clone(t.ParameterKeys)
		v.Engine = schema.RunEngine(t.Engine)
		v.CacheActions = t.CacheActions
	case *schema.LoginBlock:
		t, ok := d.(canvas.TaskData)
		if !ok {
			return mismatch()
		}
		v.URL = t.URL
		v.Title = t.Title
		v.NavigationGoal = t.NavigationGoal
		v.ErrorCodeMapping = p.mapping("error_code_mapping", t.ErrorCodeMapping)
		v.MaxRetries = t.MaxRetries
		v.MaxStepsPerRun = clonePtr(t.MaxStepsOverride)
		v.ParameterKeys = slices.Clone(t.ParameterKeys)
		v.TOTPVerificationURL = clonePtr(t.TOTPVerificationURL)
		v.TOTPIdentifier = clonePtr(t.TOTPIdentifier)
		v.Engine = schema.RunEngine(t.Engine)
		v.CompleteCriterion = t.CompleteCriterion
		v.TerminateCriterion = t.TerminateCriterion
		v.CacheActions = t.CacheActions
	case *schema.ValidationBlock:
		t, ok := d.(canvas.TaskData)
		if !ok {
			return mismatch()
		}
		v.CompleteCriterion = t.CompleteCriterion
		v.TerminateCriterion = t.TerminateCriterion
		v.ErrorCodeMapping = p.mapping("error_code_mapping", t.ErrorCodeMapping)
		v.ParameterKeys = slices.Clone(t.ParameterKeys)
	case *schema.FileDownloadBlock:
		t, ok := d.(canvas.TaskData)
		if !ok {
			return mismatch()
		}
		v.URL = t.URL
		v.Title = t.Title
		v.NavigationGoal = t.NavigationGoal
		v.ErrorCodeMapping = p.mapping("error_code_mapping", t.ErrorCodeMapping)
		v.MaxRetries = t.MaxRetries
		v.MaxStepsPerRun = clonePtr(t.MaxStepsOverride)
		v.ParameterKeys = slices.Clone(t.ParameterKeys)
		v.DownloadSuffix = clonePtr(t.DownloadSuffix)
		v.TOTPVerificationURL = clonePtr(t.TOTPVerificationURL)
		v.TOTPIdentifier = clonePtr(t.TOTPIdentifier)
		v.Engine = schema.RunEngine(t.Engine)
		v.CacheActions = t.CacheActions
	case *schema.ForLoopBlock:
		t, ok := d.(canvas.LoopData)
		if !ok {
			return mismatch()
		}
		v.LoopOverParameterKey = t.LoopValue
		v.LoopVariableReference = clonePtr(t.LoopVariableReference)
		v.CompleteIfEmpty = t.CompleteIfEmpty
	case *schema.ConditionalBlock:
		t, ok := d.(canvas.ConditionalData)
		if !ok {
			return mismatch()
		}
		for _, br := range t.Branches {
			bc := schema.BranchCondition{
				ID:             br.ID,
				IsDefault:      br.IsDefault,
				NextBlockLabel: clonePtr(links.Branches[br.ID]),
			}
			if br.Criteria != nil {
				bc.Criteria = &schema.BranchCriteria{
					CriteriaType: schema.CriteriaType(br.Criteria.CriteriaType),
					Expression:   br.Criteria.Expression,
				}
			}
			v.BranchConditions = append(v.BranchConditions, bc)
		}
	case *schema.WaitBlock:
		t, ok := d.(canvas.WaitData)
		if !ok {
			return mismatch()
		}
		v.WaitSec = t.WaitInSeconds
	case *schema.TextPromptBlock:
		t, ok := d.(canvas.TextPromptData)
		if !ok {
			return mismatch()
		}
		v.LLMKey = t.LLMKey
		v.Prompt = t.Prompt
		v.ParameterKeys = slices.Clone(t.ParameterKeys)
		v.JSONSchema = p.any("json_schema", t.JSONSchema)
	case *schema.CodeBlock:
		t, ok := d.(canvas.CodeData)
		if !ok {
			return mismatch()
		}
		v.Code = t.Code
		v.ParameterKeys = slices.Clone(t.ParameterKeys)
	case *schema.SendEmailBlock:
		t, ok := d.(canvas.SendEmailData)
		if !ok {
			return mismatch()
		}
		v.SMTPHostSecretParameterKey = t.SMTPHostSecretParameterKey
		v.SMTPPortSecretParameterKey = t.SMTPPortSecretParameterKey
		v.SMTPUsernameSecretParameterKey = t.SMTPUsernameSecretParameterKey
		v.SMTPPasswordSecretParameterKey = t.SMTPPasswordSecretParameterKey
		v.Sender = t.Sender
		v.Recipients = slices.Clone(t.Recipients)
		v.Subject = t.Subject
		v.Body = t.Body
		v.FileAttachments = slices.Clone(t.FileAttachments)
	case *schema.FileURLParserBlock:
		t, ok := d.(canvas.FileParserData)
		if !ok {
			return mismatch()
		}
		v.FileURL = t.FileURL
		v.FileType = schema.FileType(t.FileType)
		v.JSONSchema = p.any("json_schema", t.JSONSchema)
	case *schema.PDFParserBlock:
		t, ok := d.(canvas.FileParserData)
		if !ok {
			return mismatch()
		}
		v.FileURL = t.FileURL
		v.JSONSchema = p.any("json_schema", t.JSONSchema)
	case *schema.UploadToS3Block:
		t, ok := d.(canvas.StorageData)
		if !ok {
			return mismatch()
		}
		v.Path = t.Path
	case *schema.DownloadToS3Block:
		t, ok := d.(canvas.StorageData)
		if !ok {
			return mismatch()
		}
		v.URL = t.URL
	case *schema.FileUploadBlock:
		t, ok := d.(canvas.StorageData)
		if !ok {
			return mismatch()
		}
		v.Path = t.Path
		v.StorageType = t.StorageType
		v.S3Bucket = t.S3Bucket
		v.AWSAccessKeyID = t.AWSAccessKeyID
		v.AWSSecretAccessKey = t.AWSSecretAccessKey
		v.RegionName = t.RegionName
	case *schema.HTTPRequestBlock:
		t, ok := d.(canvas.HTTPRequestData)
		if !ok {
			return mismatch()
		}
		v.Method = t.Method
		v.URL = t.URL
		v.Headers = p.headers("headers", t.Headers)
		v.Body = p.object("body", t.Body)
		v.Timeout = t.Timeout
		v.FollowRedirects = t.FollowRedirects
		v.ParameterKeys = slices.Clone(t.ParameterKeys)
	case *schema.GotoURLBlock:
		t, ok := d.(canvas.URLData)
		if !ok {
			return mismatch()
		}
		v.URL = t.URL
	default:
		return schema.NewErrorf(schema.ErrCodeUnknownBlockType, "no conversion for block type %s", b.Type()).
			WithLabel(b.Base().Label)
	}
	return nil
}

// fieldParser decodes JSON-valued node fields and records malformed ones
// against the block label.
type fieldParser struct {
	label  string
	issues []schema.ValidationIssue
}

func (p *fieldParser) fail(field string, err error) {
	p.issues = append(p.issues, schema.ValidationIssue{
		Path:     fmt.Sprintf("blocks[%s].%s", p.label, field),
		Code:     schema.ErrCodeMalformedField,
		Message:  fmt.Sprintf("%s is not valid JSON: %v", field, err),
		Severity: schema.SeverityError,
	})
}

func (p *fieldParser) any(field, raw string) any {
	if isAbsent(raw) {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		p.fail(field, err)
		return nil
	}
	return v
}

func (p *fieldParser) mapping(field, raw string) map[string]string {
	if isAbsent(raw) {
		return nil
	}
	var v map[string]string
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		p.fail(field, err)
		return nil
	}
	return v
}

func (p *fieldParser) headers(field, raw string) map[string]string {
	if isEmptyObject(raw) {
		return nil
	}
	return p.mapping(field, raw)
}

func (p *fieldParser) object(field, raw string) map[string]any {
	if isAbsent(raw) || isEmptyObject(raw) {
		return nil
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		p.fail(field, err)
		return nil
	}
	return v
}

func isAbsent(raw string) bool {
	s := strings.TrimSpace(raw)
	return s == "" || s == nullJSON
}

func isEmptyObject(raw string) bool {
	var m map[string]json.RawMessage
	if isAbsent(raw) {
		return true
	}
	return json.Unmarshal([]byte(raw), &m) == nil && len(m) == 0
}

// jsonField renders an optional JSON value for editing.
func jsonField(v any) string {
	if v == nil {
		return nullJSON
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nullJSON
	}
	return string(data)
}

func mappingField(m map[string]string) string {
	if m == nil {
		return nullJSON
	}
	return jsonField(m)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
