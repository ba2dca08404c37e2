package session

import (
	"strings"
	"sync"
	"testing"

	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/gensart-projs/openai-like-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	cases := []struct {
		from   domain.SessionStatus
		action Action
		to     domain.SessionStatus
		kind   apperr.Kind
	}{
		{domain.SessionStatusActive, ActionArchive, domain.SessionStatusArchived, ""},
		{domain.SessionStatusArchived, ActionRestore, domain.SessionStatusActive, ""},
		{domain.SessionStatusActive, ActionDelete, domain.SessionStatusDeleted, ""},
		{domain.SessionStatusArchived, ActionDelete, domain.SessionStatusDeleted, ""},
		{domain.SessionStatusActive, ActionRestore, domain.SessionStatusActive, apperr.KindConflict},
		{domain.SessionStatusArchived, ActionArchive, domain.SessionStatusArchived, apperr.KindConflict},
		{domain.SessionStatusDeleted, ActionRestore, domain.SessionStatusDeleted, apperr.KindNotFound},
		{domain.SessionStatusDeleted, ActionDelete, domain.SessionStatusDeleted, apperr.KindNotFound},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"_"+string(tc.action), func(t *testing.T) {
			got, err := Transition(tc.from, tc.action)
			assert.Equal(t, tc.to, got)
			if tc.kind == "" {
				require.NoError(t, err)
				return
			}
			assert.True(t, apperr.IsKind(err, tc.kind))
		})
	}
}

func TestActionFor(t *testing.T) {
	a, ok := ActionFor(domain.SessionStatusArchived)
	assert.True(t, ok)
	assert.Equal(t, ActionArchive, a)

	_, ok = ActionFor("frozen")
	assert.False(t, ok)
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "Hello", DeriveTitle([]domain.Message{
		{Role: domain.RoleSystem, Content: "You are helpful"},
		{Role: domain.RoleUser, Content: "  Hello  "},
	}))

	long := strings.Repeat("é", 60)
	got := DeriveTitle([]domain.Message{{Role: domain.RoleUser, Content: long}})
	assert.Equal(t, strings.Repeat("é", 50)+"...", got)

	exact := strings.Repeat("a", 50)
	assert.Equal(t, exact, DeriveTitle([]domain.Message{{Role: domain.RoleUser, Content: exact}}))

	assert.Equal(t, "", DeriveTitle([]domain.Message{{Role: domain.RoleAssistant, Content: "hi"}}))
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("s1")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, k.size())
}
