// internal/types/ids_test.go
package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	assert.Len(t, string(id), 36)
}

func TestSessionKeyFormat(t *testing.T) {
	assert.Equal(t, SessionKey("telegram:123:456"), NewSessionKey("telegram", "123", "456"))
}

func TestQuestionAndDocumentSessionPrefixes(t *testing.T) {
	q := NewQuestionID()
	assert.True(t, strings.HasPrefix(string(q), QuestionPrefix))
	assert.NotEqual(t, q, NewQuestionID())

	assert.Equal(t, DocumentSessionID("doc_f1"), DocumentSessionFor("f1"))
	assert.True(t, strings.HasPrefix(string(NewDocumentSessionID()), DocumentSessionPrefix))
}
