package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"prodreport/internal/database"
	"prodreport/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func makeWorkorder(t *testing.T, repo *WorkorderRepository, orderNumber string) *domain.Workorder {
	t.Helper()
	w := &domain.Workorder{
		OrderNumber:     orderNumber,
		ProductCode:     "PCB-A1",
		PlannedQuantity: 100,
		State:           domain.WorkorderInProgress,
	}
	require.NoError(t, repo.Create(context.Background(), w))
	return w
}

func makeReport(t *testing.T, repo *ReportRepository, wo *domain.Workorder, process string, raw int, checked bool, state domain.ApprovalState) *domain.Report {
	t.Helper()
	r := &domain.Report{
		Kind:              domain.ReportKindOperator,
		WorkorderID:       &wo.ID,
		WorkorderNo:       wo.OrderNumber,
		ProcessName:       process,
		OperatorCode:      "OP-1",
		WorkDate:          time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		StartTime:         "08:00",
		EndTime:           "17:00",
		RawQuantity:       raw,
		ApprovalState:     state,
		QuantitySource:    domain.SourceOriginal,
		AllocationChecked: checked,
		RegularHours:      8.0,
	}
	require.NoError(t, repo.Create(context.Background(), r))
	return r
}

var keywords = []string{"packaging", "packing", "final pack"}

func TestWriteAllocations_AppliesWholeBatch(t *testing.T) {
	db := newTestDB(t)
	reports := NewReportRepository(db)
	wo := makeWorkorder(t, NewWorkorderRepository(db), "WO-01-001")

	r1 := makeReport(t, reports, wo, "Assembly", 0, false, domain.ApprovalApproved)
	r2 := makeReport(t, reports, wo, "Soldering", 0, false, domain.ApprovalApproved)

	checkedAt := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	err := reports.WriteAllocations(context.Background(), []AllocationWrite{
		{ReportID: r1.ID, AllocatedQuantity: 60, QuantitySource: domain.SourceAutoAllocated, AllocationNote: "time-weighted share: 60.0%", CheckedAt: checkedAt},
		{ReportID: r2.ID, AllocatedQuantity: 40, QuantitySource: domain.SourceAutoAllocated, AllocationNote: "time-weighted share: 40.0%", CheckedAt: checkedAt},
	})
	assert.NoError(t, err)

	got1, err := reports.GetByID(context.Background(), r1.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, got1.AllocatedQuantity)
	assert.Equal(t, domain.SourceAutoAllocated, got1.QuantitySource)
	assert.Equal(t, "time-weighted share: 60.0%", got1.AllocationNote)
	assert.True(t, got1.AllocationChecked)
	require.NotNil(t, got1.AllocationCheckedAt)

	got2, err := reports.GetByID(context.Background(), r2.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got2.AllocatedQuantity)
}

func TestWriteAllocations_RollsBackWhenARowIsMissing(t *testing.T) {
	db := newTestDB(t)
	reports := NewReportRepository(db)
	wo := makeWorkorder(t, NewWorkorderRepository(db), "WO-01-001")

	r1 := makeReport(t, reports, wo, "Assembly", 0, false, domain.ApprovalApproved)

	err := reports.WriteAllocations(context.Background(), []AllocationWrite{
		{ReportID: r1.ID, AllocatedQuantity: 60, QuantitySource: domain.SourceAutoAllocated, CheckedAt: time.Now()},
		{ReportID: 99999, AllocatedQuantity: 40, QuantitySource: domain.SourceAutoAllocated, CheckedAt: time.Now()},
	})
	assert.Error(t, err)

	// The batch is all-or-nothing: the valid row must come back untouched.
	got, err := reports.GetByID(context.Background(), r1.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AllocatedQuantity)
	assert.False(t, got.AllocationChecked)
	assert.Nil(t, got.AllocationCheckedAt)
	assert.Equal(t, domain.SourceOriginal, got.QuantitySource)
}

func TestListNeedingAllocation_FindsWorkordersWithPackagingSiblings(t *testing.T) {
	db := newTestDB(t)
	reports := NewReportRepository(db)
	workorders := NewWorkorderRepository(db)

	withPackaging := makeWorkorder(t, workorders, "WO-01-001")
	makeReport(t, reports, withPackaging, "Assembly", 0, false, domain.ApprovalApproved)
	makeReport(t, reports, withPackaging, "Soldering", 0, false, domain.ApprovalApproved)
	makeReport(t, reports, withPackaging, "Final Packaging", 420, false, domain.ApprovalApproved)

	// Same shape but no packaging sibling: not a candidate yet.
	noPackaging := makeWorkorder(t, workorders, "WO-01-002")
	makeReport(t, reports, noPackaging, "Assembly", 0, false, domain.ApprovalApproved)

	got, err := reports.ListNeedingAllocation(context.Background(), keywords, 10)

	require.NoError(t, err)
	if assert.Len(t, got, 1) {
		assert.Equal(t, withPackaging.ID, got[0].WorkorderID)
		assert.Equal(t, "WO-01-001", got[0].OrderNumber)
		assert.Equal(t, 2, got[0].PendingCount)
	}
}

func TestListNeedingAllocation_MatchesKeywordsCaseInsensitively(t *testing.T) {
	db := newTestDB(t)
	reports := NewReportRepository(db)
	wo := makeWorkorder(t, NewWorkorderRepository(db), "WO-01-001")

	makeReport(t, reports, wo, "Assembly", 0, false, domain.ApprovalApproved)
	makeReport(t, reports, wo, "FINAL PACK LINE 2", 50, false, domain.ApprovalApproved)

	got, err := reports.ListNeedingAllocation(context.Background(), keywords, 10)

	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestListNeedingAllocation_SkipsCheckedFilledAndUnapprovedRows(t *testing.T) {
	db := newTestDB(t)
	reports := NewReportRepository(db)
	workorders := NewWorkorderRepository(db)

	// Already visited by the engine.
	checked := makeWorkorder(t, workorders, "WO-01-001")
	makeReport(t, reports, checked, "Assembly", 0, true, domain.ApprovalApproved)
	makeReport(t, reports, checked, "Packaging", 80, true, domain.ApprovalApproved)

	// Counts filled in upstream, nothing to allocate.
	filled := makeWorkorder(t, workorders, "WO-01-002")
	makeReport(t, reports, filled, "Assembly", 30, false, domain.ApprovalApproved)
	makeReport(t, reports, filled, "Packaging", 30, false, domain.ApprovalApproved)

	// Packaging row exists but is still pending approval.
	pendingPack := makeWorkorder(t, workorders, "WO-01-003")
	makeReport(t, reports, pendingPack, "Assembly", 0, false, domain.ApprovalApproved)
	makeReport(t, reports, pendingPack, "Packaging", 90, false, domain.ApprovalPending)

	got, err := reports.ListNeedingAllocation(context.Background(), keywords, 10)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListNeedingAllocation_OrdersByOrderNumber(t *testing.T) {
	db := newTestDB(t)
	reports := NewReportRepository(db)
	workorders := NewWorkorderRepository(db)

	later := makeWorkorder(t, workorders, "WO-01-009")
	makeReport(t, reports, later, "Assembly", 0, false, domain.ApprovalApproved)
	makeReport(t, reports, later, "Packaging", 40, false, domain.ApprovalApproved)

	earlier := makeWorkorder(t, workorders, "WO-01-002")
	makeReport(t, reports, earlier, "Assembly", 0, false, domain.ApprovalApproved)
	makeReport(t, reports, earlier, "Packaging", 60, false, domain.ApprovalApproved)

	got, err := reports.ListNeedingAllocation(context.Background(), keywords, 10)

	require.NoError(t, err)
	if assert.Len(t, got, 2) {
		assert.Equal(t, "WO-01-002", got[0].OrderNumber)
		assert.Equal(t, "WO-01-009", got[1].OrderNumber)
	}
}
