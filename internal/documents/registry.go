// Package documents tracks the files a session has seen, which logical
// document each belongs to, and the "#n" labels users refer to them by.
package documents

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/user/ledgerclaw/internal/types"
)

// Document is one registered file.
type Document struct {
	FileID            types.FileID            `json:"file_id"`
	DocumentSessionID types.DocumentSessionID `json:"document_session_id"`
	Label             string                  `json:"label,omitempty"`
	Analysis          json.RawMessage         `json:"analysis,omitempty"`
	FileName          string                  `json:"file_name,omitempty"`
	ContentType       string                  `json:"content_type,omitempty"`
	BlobReference     string                  `json:"blob_reference,omitempty"`
	SuggestedScenario string                  `json:"suggested_scenario,omitempty"`
}

// Registry is owned by a single run and is not safe for concurrent use.
type Registry struct {
	docs        map[types.FileID]*Document
	order       []types.FileID
	bySession   map[types.DocumentSessionID][]types.FileID
	labels      map[types.DocumentSessionID]string
	counter     int
	active      types.DocumentSessionID
	defaultFile types.FileID
}

// NewRegistry returns an empty registry whose next label is "#<counter+1>".
func NewRegistry(counter int) *Registry {
	return &Registry{
		docs:      make(map[types.FileID]*Document),
		bySession: make(map[types.DocumentSessionID][]types.FileID),
		labels:    make(map[types.DocumentSessionID]string),
		counter:   counter,
	}
}

// Restore rebuilds a registry from what a session persisted in earlier turns.
// Analyses are not restored; callers re-register them as they load.
func Restore(session *types.Session) *Registry {
	r := NewRegistry(session.LabelCounter)
	for ds, label := range session.DocumentLabels {
		r.labels[ds] = label
	}
	for _, rec := range session.Documents {
		r.attach(rec.FileID, rec.DocumentSessionID)
		d := r.docs[rec.FileID]
		d.FileName = rec.FileName
		d.SuggestedScenario = rec.ScenarioKey
	}
	if session.ActiveDocumentSessionID != "" {
		r.SetActive(session.ActiveDocumentSessionID)
	}
	return r
}

// Register records fileID. It is idempotent per file: a repeated call
// replaces the analysis when one is given and never duplicates the entry.
// Without an explicit document session the file keeps its previous one,
// joins the active one, or opens its own.
func (r *Registry) Register(fileID types.FileID, analysis json.RawMessage, docSession types.DocumentSessionID) *Document {
	if fileID == "" {
		return nil
	}
	if docSession == "" {
		if d, ok := r.docs[fileID]; ok {
			docSession = d.DocumentSessionID
		} else if r.active != "" {
			docSession = r.active
		} else {
			docSession = types.DocumentSessionFor(fileID)
		}
	}
	d := r.attach(fileID, docSession)
	if len(analysis) > 0 {
		d.Analysis = analysis
	}
	return d
}

func (r *Registry) attach(fileID types.FileID, docSession types.DocumentSessionID) *Document {
	d, ok := r.docs[fileID]
	if !ok {
		d = &Document{FileID: fileID}
		r.docs[fileID] = d
		r.order = append(r.order, fileID)
	}
	if d.DocumentSessionID != "" && d.DocumentSessionID != docSession {
		r.bySession[d.DocumentSessionID] = remove(r.bySession[d.DocumentSessionID], fileID)
	}
	d.DocumentSessionID = docSession
	if !contains(r.bySession[docSession], fileID) {
		r.bySession[docSession] = append(r.bySession[docSession], fileID)
	}
	if _, labelled := r.labels[docSession]; !labelled {
		r.counter++
		r.labels[docSession] = "#" + strconv.Itoa(r.counter)
	}
	d.Label = r.labels[docSession]
	return d
}

// AssignLabel sets the label for a document session that has none yet.
// Existing labels are stable and are never reassigned.
func (r *Registry) AssignLabel(docSession types.DocumentSessionID, label string) bool {
	label = strings.TrimSpace(label)
	if docSession == "" || label == "" {
		return false
	}
	if _, ok := r.labels[docSession]; ok {
		return false
	}
	for _, existing := range r.labels {
		if strings.EqualFold(existing, label) {
			return false
		}
	}
	r.labels[docSession] = label
	if n, err := strconv.Atoi(strings.TrimPrefix(label, "#")); err == nil && n > r.counter {
		r.counter = n
	}
	for _, id := range r.bySession[docSession] {
		r.docs[id].Label = label
	}
	return true
}

// Resolve returns the registered document for fileID.
func (r *Registry) Resolve(fileID types.FileID) (*Document, bool) {
	d, ok := r.docs[fileID]
	return d, ok
}

// FileIDs returns the files of a document session in registration order.
func (r *Registry) FileIDs(docSession types.DocumentSessionID) []types.FileID {
	return append([]types.FileID(nil), r.bySession[docSession]...)
}

// Label returns the label of a document session, or "" if it has none.
func (r *Registry) Label(docSession types.DocumentSessionID) string {
	return r.labels[docSession]
}

// Labels returns a copy of every assigned label.
func (r *Registry) Labels() map[types.DocumentSessionID]string {
	out := make(map[types.DocumentSessionID]string, len(r.labels))
	for k, v := range r.labels {
		out[k] = v
	}
	return out
}

// LabelCounter is the number of the last label handed out.
func (r *Registry) LabelCounter() int {
	return r.counter
}

// Documents returns every registered document in registration order.
func (r *Registry) Documents() []*Document {
	out := make([]*Document, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.docs[id])
	}
	return out
}

// DocumentSessions returns document sessions in first-seen order.
func (r *Registry) DocumentSessions() []types.DocumentSessionID {
	var out []types.DocumentSessionID
	seen := make(map[types.DocumentSessionID]bool)
	for _, id := range r.order {
		ds := r.docs[id].DocumentSessionID
		if !seen[ds] {
			seen[ds] = true
			out = append(out, ds)
		}
	}
	return out
}

// Active returns the active document session pointer.
func (r *Registry) Active() types.DocumentSessionID {
	return r.active
}

// DefaultFile returns the file "this document" refers to.
func (r *Registry) DefaultFile() types.FileID {
	return r.defaultFile
}

// SetActive points the registry at docSession and makes its first file the default.
func (r *Registry) SetActive(docSession types.DocumentSessionID) {
	r.active = docSession
	r.defaultFile = ""
	if files := r.bySession[docSession]; len(files) > 0 {
		r.defaultFile = files[0]
	}
}

// SetDefaultFile makes fileID the default and activates its document session.
func (r *Registry) SetDefaultFile(fileID types.FileID) {
	r.defaultFile = fileID
	if d, ok := r.docs[fileID]; ok {
		r.active = d.DocumentSessionID
	}
}

// ClearActive drops both the active session and the default file.
func (r *Registry) ClearActive() {
	r.active = ""
	r.defaultFile = ""
}

// ResolveAttachmentToken maps what a model or user wrote ("#2", "[1]", a
// label, a file id, a document session id) to a registered file.
func (r *Registry) ResolveAttachmentToken(token string) (types.FileID, bool) {
	normalized := strings.TrimSpace(token)
	if normalized == "" {
		return "", false
	}
	if len(normalized) > 2 && strings.HasPrefix(normalized, "[") && strings.HasSuffix(normalized, "]") {
		normalized = strings.TrimSpace(normalized[1 : len(normalized)-1])
	}

	activeFiles := r.bySession[r.active]
	if idx, err := strconv.Atoi(strings.TrimPrefix(normalized, "#")); err == nil && idx > 0 && idx <= len(activeFiles) {
		return activeFiles[idx-1], true
	}
	if strings.HasPrefix(string(r.active), types.DocumentSessionPrefix) &&
		strings.EqualFold(strings.TrimPrefix(string(r.active), types.DocumentSessionPrefix), normalized) &&
		len(activeFiles) > 0 {
		return activeFiles[0], true
	}
	if _, ok := r.docs[types.FileID(normalized)]; ok {
		return types.FileID(normalized), true
	}
	if files := r.bySession[types.DocumentSessionID(normalized)]; len(files) > 0 {
		return files[0], true
	}
	for ds, label := range r.labels {
		if strings.EqualFold(label, normalized) {
			if files := r.bySession[ds]; len(files) > 0 {
				return files[0], true
			}
		}
	}
	return "", false
}

// ApplyTo writes label, pointer and document state back onto the session row.
func (r *Registry) ApplyTo(session *types.Session) {
	session.LabelCounter = r.counter
	session.DocumentLabels = r.Labels()
	session.ActiveDocumentSessionID = r.active
	for _, d := range r.Documents() {
		session.UpsertDocument(types.DocumentRecord{
			FileID:            d.FileID,
			DocumentSessionID: d.DocumentSessionID,
			FileName:          d.FileName,
			ScenarioKey:       d.SuggestedScenario,
		})
	}
}

// Describe renders a short "#1 invoice.pdf (doc_x)" listing for prompts.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, d := range r.Documents() {
		fmt.Fprintf(&b, "%s fileId=%s documentSessionId=%s", d.Label, d.FileID, d.DocumentSessionID)
		if d.FileName != "" {
			fmt.Fprintf(&b, " name=%q", d.FileName)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func contains(ids []types.FileID, id types.FileID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids []types.FileID, id types.FileID) []types.FileID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
