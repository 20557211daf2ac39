package signal

import (
	"context"
	"time"

	"github.com/nao1215/gymhub/internal/portal"
)

// fakeSource はテスト用のSource実装。nilのフィールドは「データなし」を表す。
type fakeSource struct {
	member          *portal.Member
	approvedPayment *portal.Payment
	latestPayment   *portal.Payment
	lastAttendance  *time.Time
	attendances     []time.Time
	announcements   []portal.Announcement
	equipment       []portal.Equipment
	err             error
	block           bool
}

func (f *fakeSource) wait(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *fakeSource) Member(ctx context.Context, _ string) (*portal.Member, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.member == nil {
		return nil, portal.ErrNotFound
	}
	return f.member, nil
}

func (f *fakeSource) LatestApprovedPayment(ctx context.Context, _ string) (*portal.Payment, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.approvedPayment == nil {
		return nil, portal.ErrNotFound
	}
	return f.approvedPayment, nil
}

func (f *fakeSource) LatestPayment(ctx context.Context, _ string) (*portal.Payment, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.latestPayment == nil {
		return nil, portal.ErrNotFound
	}
	return f.latestPayment, nil
}

func (f *fakeSource) LastAttendance(ctx context.Context, _ string) (time.Time, error) {
	if err := f.wait(ctx); err != nil {
		return time.Time{}, err
	}
	if f.lastAttendance == nil {
		return time.Time{}, portal.ErrNotFound
	}
	return *f.lastAttendance, nil
}

func (f *fakeSource) AttendanceCountSince(ctx context.Context, _ string, since time.Time) (int, error) {
	if err := f.wait(ctx); err != nil {
		return 0, err
	}
	n := 0
	for _, a := range f.attendances {
		if a.After(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeSource) AnnouncementsSince(ctx context.Context, since time.Time) ([]portal.Announcement, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	var out []portal.Announcement
	for _, a := range f.announcements {
		if !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeSource) EquipmentByStatus(ctx context.Context, status string) ([]portal.Equipment, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	var out []portal.Equipment
	for _, e := range f.equipment {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out, nil
}

// testNow はテストの基準時刻。
var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }
