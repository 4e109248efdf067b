package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"prodreport/internal/config"
	"prodreport/internal/database"
	"prodreport/internal/domain"
	"prodreport/internal/modules/workhours"
	"prodreport/internal/pkg/logger"
	"prodreport/internal/repository"
)

// Seeds a local database with a demo workorder set: a few operators, a
// packaging line, and reports in the mixed filled/unfilled shape the
// allocation engine deals with in production.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	if err := repository.AutoMigrate(db); err != nil {
		log.WithError(err).Fatal("migration failed")
	}

	log.Info("cleaning old data")
	db.Exec("DELETE FROM allocation_logs")
	db.Exec("DELETE FROM reports")
	db.Exec("DELETE FROM workorders")

	ctx := context.Background()
	workorderRepo := repository.NewWorkorderRepository(db)
	reportRepo := repository.NewReportRepository(db)

	log.Info("creating workorders")
	workorders := []*domain.Workorder{
		{OrderNumber: "WO-2026-0001", ProductCode: "PCB-A1", CompanyCode: "ACME", PlannedQuantity: 500, State: domain.WorkorderInProgress},
		{OrderNumber: "WO-2026-0002", ProductCode: "PCB-B4", CompanyCode: "ACME", PlannedQuantity: 300, State: domain.WorkorderInProgress},
		{OrderNumber: "WO-2026-0003", ProductCode: "ENC-C2", CompanyCode: "GLOBEX", PlannedQuantity: 120, State: domain.WorkorderPending},
	}
	for _, w := range workorders {
		if err := workorderRepo.Create(ctx, w); err != nil {
			log.WithError(err).Fatal("seed workorder failed")
		}
	}

	type seedReport struct {
		woIndex  int
		kind     domain.ReportKind
		process  string
		operator string
		machine  string
		daysAgo  int
		start    string
		end      string
		raw      int
		defects  int
	}

	rows := []seedReport{
		// WO-2026-0001: two assembly operators with no counts plus a
		// packaging line that counted 420 good units.
		{0, domain.ReportKindOperator, "Assembly", "OP-101", "", 2, "08:00", "17:30", 0, 0},
		{0, domain.ReportKindOperator, "Assembly", "OP-102", "", 2, "08:00", "17:30", 0, 0},
		{0, domain.ReportKindOperator, "Soldering", "OP-103", "", 2, "08:00", "12:00", 0, 2},
		{0, domain.ReportKindOperator, "Packaging", "OP-104", "", 1, "09:00", "15:00", 420, 3},

		// WO-2026-0002: SMT line plus packaging, one night shift.
		{1, domain.ReportKindSMT, "SMT Mounting", "", "SMT-01", 3, "20:00", "04:00", 0, 0},
		{1, domain.ReportKindSMT, "SMT Mounting", "", "SMT-02", 3, "08:00", "18:00", 0, 1},
		{1, domain.ReportKindOperator, "Final Pack", "OP-110", "", 1, "08:00", "16:00", 280, 0},

		// WO-2026-0003: not started, a single pending report.
		{2, domain.ReportKindOperator, "Assembly", "OP-120", "", 0, "08:00", "12:00", 0, 0},
	}

	log.Info("creating reports")
	now := time.Now()
	for i, sr := range rows {
		r := &domain.Report{
			Kind:           sr.kind,
			WorkorderID:    &workorders[sr.woIndex].ID,
			WorkorderNo:    workorders[sr.woIndex].OrderNumber,
			ProcessName:    sr.process,
			OperatorCode:   sr.operator,
			EquipmentCode:  sr.machine,
			WorkDate:       now.AddDate(0, 0, -sr.daysAgo).Truncate(24 * time.Hour),
			StartTime:      sr.start,
			EndTime:        sr.end,
			RawQuantity:    sr.raw,
			DefectQuantity: sr.defects,
			ApprovalState:  domain.ApprovalPending,
			QuantitySource: domain.SourceOriginal,
		}

		// Everything but the last row is pre-approved with frozen hours,
		// leaving the engine real work to do on first run.
		if i < len(rows)-1 {
			b := workhours.Calculate(sr.start, sr.end, cfg.Rules.ProfileFor(sr.kind))
			r.ApprovalState = domain.ApprovalApproved
			r.RegularHours = b.Regular
			r.OvertimeHours = b.Overtime
			r.BreakHours = b.Break
		}

		if err := reportRepo.Create(ctx, r); err != nil {
			log.WithError(err).Fatal("seed report failed")
		}
	}

	schedRepo := repository.NewSchedulerRepository(db)
	if _, err := schedRepo.Get(ctx); err != nil {
		log.WithError(err).Fatal("seed scheduler settings failed")
	}

	fmt.Fprintf(os.Stdout, "seeded %d workorders and %d reports\n", len(workorders), len(rows))
}
