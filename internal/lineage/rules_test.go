package lineage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-sales-proposals/internal/domain"
	"github.com/pesio-ai/be-sales-proposals/internal/errors"
)

func doc(kind domain.Kind, id, ref string, status domain.ApprovalStatus) *domain.Document {
	d := &domain.Document{
		ID:        id,
		Kind:      kind,
		Reference: ref,
		Approval:  domain.ApprovalState{Status: status},
	}
	if kind.CarriesContent() {
		d.Content = &domain.ProposalContent{OfferReference: "OFR-1", Title: ref}
	}
	return d
}

func approvedAt(d *domain.Document, ts time.Time) *domain.Document {
	d.Approval.Status = domain.ApprovalApproved
	d.Approval.ApprovedAt = &ts
	return d
}

func requireLineageError(t *testing.T, err error, blockingID string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeLineage), "expected lineage violation, got %v", err)
	assert.Equal(t, blockingID, errors.From(err).BlockingID)
}

func TestCanCreateAmendment(t *testing.T) {
	base := doc(domain.KindBaseDocument, "b1", "OFR1-PRP-001", domain.ApprovalApproved)
	require.NoError(t, CanCreateAmendment(base, nil))

	t.Run("unapproved base", func(t *testing.T) {
		draft := doc(domain.KindBaseDocument, "b2", "OFR1-PRP-002", domain.ApprovalNone)
		requireLineageError(t, CanCreateAmendment(draft, nil), "b2")
	})

	t.Run("second amendment names the existing one", func(t *testing.T) {
		existing := doc(domain.KindAmendment, "a1", "OFR1-AMD-001", domain.ApprovalNone)
		err := CanCreateAmendment(base, existing)
		requireLineageError(t, err, "a1")
		assert.Contains(t, err.Error(), "OFR1-AMD-001")
	})

	t.Run("wrong parent kind", func(t *testing.T) {
		record := doc(domain.KindExecutionRecord, "e1", "OFR1-EXE-001", domain.ApprovalNone)
		requireLineageError(t, CanCreateAmendment(record, nil), "e1")
	})
}

func TestCanCreateExecutionRecord(t *testing.T) {
	source := approvedAt(doc(domain.KindAmendment, "a2", "OFR1-AMD-002", domain.ApprovalNone), time.Now())

	require.NoError(t, CanCreateExecutionRecord(source, nil, source, nil))

	t.Run("unapproved source", func(t *testing.T) {
		draft := doc(domain.KindAmendment, "a3", "OFR1-AMD-003", domain.ApprovalPending)
		requireLineageError(t, CanCreateExecutionRecord(draft, nil, nil, nil), "a3")
	})

	t.Run("source has an amendment", func(t *testing.T) {
		child := doc(domain.KindAmendment, "a4", "OFR1-AMD-003", domain.ApprovalNone)
		requireLineageError(t, CanCreateExecutionRecord(source, child, source, nil), "a4")
	})

	t.Run("not the latest approved node", func(t *testing.T) {
		newer := approvedAt(doc(domain.KindAmendment, "a5", "OFR1-AMD-003", domain.ApprovalNone), time.Now())
		err := CanCreateExecutionRecord(source, nil, newer, nil)
		requireLineageError(t, err, "a5")
		assert.Contains(t, err.Error(), "OFR1-AMD-003", "the rejection must name the actual latest node")
	})

	t.Run("record already exists", func(t *testing.T) {
		existing := doc(domain.KindExecutionRecord, "e2", "OFR1-EXE-001", domain.ApprovalNone)
		requireLineageError(t, CanCreateExecutionRecord(source, nil, source, existing), "e2")
	})

	t.Run("wrong source kind", func(t *testing.T) {
		co := doc(domain.KindChangeOrder, "c1", "OFR1-VAR-001", domain.ApprovalApproved)
		requireLineageError(t, CanCreateExecutionRecord(co, nil, co, nil), "c1")
	})
}

func TestCanCreateChangeOrderFromRecord(t *testing.T) {
	record := doc(domain.KindExecutionRecord, "e3", "OFR1-EXE-001", domain.ApprovalNone)
	upstream := doc(domain.KindAmendment, "a6", "OFR1-AMD-002", domain.ApprovalApproved)

	require.NoError(t, CanCreateChangeOrderFromRecord(record, upstream, nil))

	t.Run("missing upstream", func(t *testing.T) {
		requireLineageError(t, CanCreateChangeOrderFromRecord(record, nil, nil), "e3")
	})

	t.Run("chain already started", func(t *testing.T) {
		head := doc(domain.KindChangeOrder, "c2", "OFR1-VAR-001", domain.ApprovalNone)
		requireLineageError(t, CanCreateChangeOrderFromRecord(record, upstream, head), "c2")
	})
}

func TestCanCreateChangeOrderFromChangeOrder(t *testing.T) {
	parent := doc(domain.KindChangeOrder, "c3", "OFR1-VAR-001", domain.ApprovalApproved)
	require.NoError(t, CanCreateChangeOrderFromChangeOrder(parent, nil))

	successor := doc(domain.KindChangeOrder, "c4", "OFR1-VAR-002", domain.ApprovalNone)
	requireLineageError(t, CanCreateChangeOrderFromChangeOrder(parent, successor), "c4")
}

func TestCanMutate(t *testing.T) {
	draft := doc(domain.KindAmendment, "a7", "OFR1-AMD-001", domain.ApprovalNone)
	require.NoError(t, CanMutate(draft, nil))

	t.Run("approved documents are frozen", func(t *testing.T) {
		approved := doc(domain.KindAmendment, "a8", "OFR1-AMD-002", domain.ApprovalApproved)
		requireLineageError(t, CanMutate(approved, nil), "a8")
	})

	t.Run("record frozen by change order", func(t *testing.T) {
		record := doc(domain.KindExecutionRecord, "e4", "OFR1-EXE-001", domain.ApprovalNone)
		co := doc(domain.KindChangeOrder, "c5", "OFR1-VAR-001", domain.ApprovalNone)
		requireLineageError(t, CanMutate(record, co), "c5")
	})
}

func TestCanDelete(t *testing.T) {
	draft := doc(domain.KindAmendment, "a9", "OFR1-AMD-001", domain.ApprovalRejected)
	require.NoError(t, CanDelete(draft, nil, nil))

	t.Run("approved", func(t *testing.T) {
		approved := doc(domain.KindBaseDocument, "b3", "OFR1-PRP-001", domain.ApprovalApproved)
		requireLineageError(t, CanDelete(approved, nil, nil), "b3")
	})

	t.Run("has child", func(t *testing.T) {
		child := doc(domain.KindAmendment, "a10", "OFR1-AMD-002", domain.ApprovalNone)
		requireLineageError(t, CanDelete(draft, child, nil), "a10")
	})

	t.Run("has external dependent", func(t *testing.T) {
		dep := Dependent{
			Ref:   domain.Ref{Kind: domain.KindExecutionRecord, ID: "e5"},
			Label: "execution record OFR1-EXE-001",
		}
		err := CanDelete(draft, nil, []Dependent{dep})
		requireLineageError(t, err, "e5")
		assert.Contains(t, err.Error(), "OFR1-EXE-001")
	})
}

func TestCanResetApproval(t *testing.T) {
	approved := doc(domain.KindBaseDocument, "b6", "OFR1-PRP-001", domain.ApprovalApproved)
	require.NoError(t, CanResetApproval(approved, nil, nil))

	t.Run("has child", func(t *testing.T) {
		child := doc(domain.KindAmendment, "a14", "OFR1-AMD-001", domain.ApprovalNone)
		err := CanResetApproval(approved, child, nil)
		requireLineageError(t, err, "a14")
		assert.Contains(t, err.Error(), "OFR1-AMD-001")
	})

	t.Run("has a derived record", func(t *testing.T) {
		dep := Dependent{
			Ref:   domain.Ref{Kind: domain.KindExecutionRecord, ID: "e6"},
			Label: "execution record OFR1-EXE-001",
		}
		err := CanResetApproval(approved, nil, []Dependent{dep})
		requireLineageError(t, err, "e6")
		assert.Contains(t, err.Error(), "OFR1-EXE-001")
	})
}

func TestLatestApproved(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	root := approvedAt(doc(domain.KindBaseDocument, "b4", "OFR1-PRP-001", domain.ApprovalNone), t0)
	mid := approvedAt(doc(domain.KindAmendment, "a11", "OFR1-AMD-001", domain.ApprovalNone), t0.Add(24*time.Hour))
	tip := doc(domain.KindAmendment, "a12", "OFR1-AMD-002", domain.ApprovalPending)

	assert.Nil(t, LatestApproved(nil))
	assert.Nil(t, LatestApproved([]*domain.Document{tip}))

	got := LatestApproved([]*domain.Document{root, mid, tip})
	require.NotNil(t, got)
	assert.Equal(t, "a11", got.ID)

	t.Run("missing timestamps fall back to chain depth", func(t *testing.T) {
		first := doc(domain.KindBaseDocument, "b5", "OFR1-PRP-001", domain.ApprovalApproved)
		second := doc(domain.KindAmendment, "a13", "OFR1-AMD-001", domain.ApprovalApproved)
		got := LatestApproved([]*domain.Document{first, second})
		require.NotNil(t, got)
		assert.Equal(t, "a13", got.ID)
	})
}
