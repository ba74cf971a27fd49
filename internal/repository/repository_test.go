package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/venue-ticketing/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestSlotCompareAndSwap(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"claimed", 1, true},
		{"lost race", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectExec(regexp.QuoteMeta(`UPDATE slots SET status = ?`)).
				WithArgs(model.SlotBooked, 7, model.SlotAvailable).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			got, err := NewSlotRepo(db, 0).CompareAndSwapStatus(context.Background(), 7, model.SlotAvailable, model.SlotBooked)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestSlotGetOrCreate(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO slots`)).
		WithArgs("2025-03-01", "10:00-12:00").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM slots WHERE slot_date = ? AND label = ?`)).
		WithArgs("2025-03-01", "10:00-12:00").
		WillReturnRows(sqlmock.NewRows([]string{"id", "slot_date", "label", "status", "created_at", "updated_at"}).
			AddRow(3, "2025-03-01", "10:00-12:00", "available", now, now))

	s, err := NewSlotRepo(db, 0).GetOrCreate(context.Background(), "2025-03-01", "10:00-12:00")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if s.ID != 3 || s.Status != model.SlotAvailable || s.Label != "10:00-12:00" {
		t.Errorf("unexpected slot %+v", s)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSlotGetByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM slots WHERE id = ?`)).
		WithArgs(99).
		WillReturnError(sql.ErrNoRows)

	_, err := NewSlotRepo(db, 0).GetByID(context.Background(), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestStoreTimeout(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE slots SET status = ?`)).
		WillDelayFor(200 * time.Millisecond).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := NewSlotRepo(db, 10*time.Millisecond).CompareAndSwapStatus(context.Background(), 1, model.SlotAvailable, model.SlotBooked)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestBookingCancelSettle(t *testing.T) {
	tests := []struct {
		name    string
		exists  bool
		wantErr error
	}{
		{"already cancelled", true, ErrConflict},
		{"missing", false, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectExec(regexp.QuoteMeta(`UPDATE bookings`)).
				WillReturnResult(sqlmock.NewResult(0, 0))
			q := mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM bookings WHERE id = ?`)).WithArgs(5)
			if tt.exists {
				q.WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
			} else {
				q.WillReturnError(sql.ErrNoRows)
			}

			err := NewBookingRepo(db, 0).Cancel(context.Background(), 5, model.PaymentRefunded, "cancelled")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTicketCreateDuplicateNumber(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO tickets`)).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'TK1' for key 'ticket_number'"})
	mock.ExpectRollback()

	tk := &model.Ticket{TicketNumber: "TK1", VisitDate: "2025-03-01", Guardians: 1, Children: 1}
	err := NewTicketRepo(db, 0).Create(context.Background(), tk)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("got %v, want ErrDuplicate", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGateLogAppendAndList(t *testing.T) {
	db, mock := newMock(t)
	repo := NewGateLogRepo(db, 0)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO gate_logs`)).
		WithArgs(11, model.EntryIn, "G1", nil, "4", "Rahim", at).
		WillReturnResult(sqlmock.NewResult(21, 1))

	l := &model.GateLog{TicketID: 11, EntryType: model.EntryIn, GateID: "G1", StaffID: "4", StaffName: "Rahim", ScannedAt: at}
	if err := repo.Append(context.Background(), l); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if l.ID != 21 {
		t.Errorf("ID = %d, want 21", l.ID)
	}

	cols := []string{"id", "ticket_id", "entry_type", "gate_id", "camera_id", "staff_id", "staff_name", "scanned_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM gate_logs WHERE ticket_id = ? ORDER BY id`)).
		WithArgs(11).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(21, 11, "entry", "G1", nil, "4", "Rahim", at).
			AddRow(22, 11, "exit", "G2", "CAM-2", "4", "Rahim", at.Add(time.Hour)))

	logs, err := repo.ListByTicket(context.Background(), 11)
	if err != nil {
		t.Fatalf("ListByTicket: %v", err)
	}
	if len(logs) != 2 || logs[0].EntryType != model.EntryIn || logs[1].EntryType != model.EntryOut {
		t.Fatalf("unexpected logs %+v", logs)
	}
	if logs[0].CameraID != nil || logs[1].CameraID == nil || *logs[1].CameraID != "CAM-2" {
		t.Errorf("camera ids not scanned correctly: %+v", logs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestNotificationHasSent(t *testing.T) {
	ref := model.Reference{Type: "ticket", ID: "TK1"}

	db, mock := newMock(t)
	repo := NewNotificationLogRepo(db, 0)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM notification_logs`)).
		WithArgs("ticket", "TK1", model.ChannelSMS).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM notification_logs`)).
		WithArgs("ticket", "TK1", model.ChannelWhatsApp).
		WillReturnError(sql.ErrNoRows)

	sent, err := repo.HasSent(context.Background(), ref, model.ChannelSMS)
	if err != nil || !sent {
		t.Fatalf("sms: sent=%v err=%v", sent, err)
	}
	sent, err = repo.HasSent(context.Background(), ref, model.ChannelWhatsApp)
	if err != nil || sent {
		t.Fatalf("whatsapp: sent=%v err=%v", sent, err)
	}
}

func TestBookingHasLiveForSlot(t *testing.T) {
	for _, live := range []bool{true, false} {
		db, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM bookings WHERE slot_id = ? AND status <> 'cancelled')`)).
			WithArgs(4).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(live))

		got, err := NewBookingRepo(db, 0).HasLiveForSlot(context.Background(), 4)
		if err != nil || got != live {
			t.Errorf("live=%v: got %v, %v", live, got, err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	}
}

func TestNotificationClaim(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"new claim", 1, true},
		{"stale claim taken over", 2, true},
		{"held or sent", 0, false},
	}
	ref := model.Reference{Type: "booking", ID: "42"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO notification_claims`)).
				WithArgs("booking", "42", model.ChannelWhatsApp, sqlmock.AnyArg(), sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			got, err := NewNotificationLogRepo(db, 0).Claim(context.Background(), ref, model.ChannelWhatsApp)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNotificationSettle(t *testing.T) {
	ref := model.Reference{Type: "booking", ID: "42"}
	db, mock := newMock(t)
	repo := NewNotificationLogRepo(db, 0)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE notification_claims SET sent = 1`)).
		WithArgs("booking", "42", model.ChannelSMS).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM notification_claims`)).
		WithArgs("booking", "42", model.ChannelWhatsApp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Settle(context.Background(), ref, model.ChannelSMS, true); err != nil {
		t.Fatal(err)
	}
	if err := repo.Settle(context.Background(), ref, model.ChannelWhatsApp, false); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
