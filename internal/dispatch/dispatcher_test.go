package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/royalfresh/freshbridge/internal/bluetooth"
	"github.com/royalfresh/freshbridge/internal/schedule"
	"github.com/royalfresh/freshbridge/internal/storage"
	"github.com/royalfresh/freshbridge/internal/types"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu      sync.Mutex
	status  bluetooth.Status
	sent    []string
	sendErr error
}

func (f *fakeSender) Send(ctx context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, string(payload))
	return nil
}

func (f *fakeSender) Status() bluetooth.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSender) payloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

func newTestDispatcher(t *testing.T, sender *fakeSender, rows ...types.Schedule) (*Dispatcher, *schedule.Repository) {
	t.Helper()
	store := storage.NewMemoryStore()
	for _, row := range rows {
		if _, err := store.InsertSchedule(context.Background(), row); err != nil {
			t.Fatalf("seed schedule: %v", err)
		}
	}
	repo := schedule.NewRepository(zap.NewNop(), store, nil)
	t.Cleanup(repo.Close)
	return NewDispatcher(zap.NewNop(), sender, repo), repo
}

func TestEncodeSchedule(t *testing.T) {
	s := types.Schedule{
		TimeRange: "08:00-10:00",
		Frequency: "Mon, Wed",
		DeviceID:  "G3",
		Grade:     "G3",
	}
	if got := EncodeSchedule(s); got != "08:00-10:00|Mon, Wed|G3|G3" {
		t.Errorf("EncodeSchedule = %q", got)
	}
}

func TestToggleOnSendsPayloadThenPersists(t *testing.T) {
	sender := &fakeSender{status: bluetooth.StatusConnected}
	d, repo := newTestDispatcher(t, sender, types.Schedule{
		ID: 1, TimeRange: "08:00-10:00", Frequency: "Every day", DeviceID: "G2", Grade: "G2",
	})

	if err := d.Toggle(context.Background(), 1, true); err != nil {
		t.Fatalf("Toggle: %v", err)
	}

	payloads := sender.payloads()
	if len(payloads) != 1 || payloads[0] != "08:00-10:00|Every day|G2|G2" {
		t.Errorf("payloads = %v", payloads)
	}

	rows, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !rows[0].IsOn {
		t.Error("schedule not marked on")
	}
}

func TestToggleOnRejectedWhileAnotherActive(t *testing.T) {
	sender := &fakeSender{status: bluetooth.StatusConnected}
	d, repo := newTestDispatcher(t, sender,
		types.Schedule{ID: 1, TimeRange: "08:00-10:00", Frequency: "Every day", DeviceID: "G2", Grade: "G2", IsOn: true},
		types.Schedule{ID: 2, TimeRange: "12:00-13:00", Frequency: "Mon", DeviceID: "G5", Grade: "G5"},
	)

	err := d.Toggle(context.Background(), 2, true)
	if !errors.Is(err, ErrAnotherActive) {
		t.Fatalf("err = %v, want ErrAnotherActive", err)
	}
	if len(sender.payloads()) != 0 {
		t.Error("payload sent despite rejection")
	}

	rows, _ := repo.List(context.Background())
	if rows[1].IsOn {
		t.Error("rejected schedule was persisted as on")
	}
}

func TestToggleOnRequiresConnection(t *testing.T) {
	sender := &fakeSender{status: bluetooth.StatusIdle}
	d, _ := newTestDispatcher(t, sender, types.Schedule{
		ID: 1, TimeRange: "08:00-10:00", Frequency: "Every day", DeviceID: "G2", Grade: "G2",
	})

	err := d.Toggle(context.Background(), 1, true)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestToggleOffSendsOffCommand(t *testing.T) {
	sender := &fakeSender{status: bluetooth.StatusConnected}
	d, repo := newTestDispatcher(t, sender, types.Schedule{
		ID: 1, TimeRange: "08:00-10:00", Frequency: "Every day", DeviceID: "G2", Grade: "G2", IsOn: true,
	})

	if err := d.Toggle(context.Background(), 1, false); err != nil {
		t.Fatalf("Toggle: %v", err)
	}

	payloads := sender.payloads()
	if len(payloads) != 1 || payloads[0] != CommandOff {
		t.Errorf("payloads = %v, want [%s]", payloads, CommandOff)
	}

	rows, _ := repo.List(context.Background())
	if rows[0].IsOn {
		t.Error("schedule still marked on")
	}
}

func TestToggleOffAllowedWhileOtherActive(t *testing.T) {
	// Exclusivity only gates activation; turning off is always allowed.
	sender := &fakeSender{status: bluetooth.StatusConnected}
	d, _ := newTestDispatcher(t, sender,
		types.Schedule{ID: 1, TimeRange: "08:00-10:00", Frequency: "Every day", DeviceID: "G2", Grade: "G2", IsOn: true},
		types.Schedule{ID: 2, TimeRange: "12:00-13:00", Frequency: "Mon", DeviceID: "G5", Grade: "G5", IsOn: true},
	)

	if err := d.Toggle(context.Background(), 2, false); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
}

func TestToggleSendFailureLeavesStateUntouched(t *testing.T) {
	sender := &fakeSender{status: bluetooth.StatusConnected, sendErr: errors.New("broken pipe")}
	d, repo := newTestDispatcher(t, sender, types.Schedule{
		ID: 1, TimeRange: "08:00-10:00", Frequency: "Every day", DeviceID: "G2", Grade: "G2",
	})

	if err := d.Toggle(context.Background(), 1, true); err == nil {
		t.Fatal("expected send error")
	}

	rows, _ := repo.List(context.Background())
	if rows[0].IsOn {
		t.Error("schedule marked on despite failed send")
	}
}

func TestToggleUnknownSchedule(t *testing.T) {
	sender := &fakeSender{status: bluetooth.StatusConnected}
	d, _ := newTestDispatcher(t, sender)

	err := d.Toggle(context.Background(), 99, true)
	if !errors.Is(err, ErrScheduleNotFound) {
		t.Fatalf("err = %v, want ErrScheduleNotFound", err)
	}
}

func TestManualCommands(t *testing.T) {
	sender := &fakeSender{status: bluetooth.StatusConnected}
	d, _ := newTestDispatcher(t, sender)

	if err := d.SendOn(context.Background()); err != nil {
		t.Fatalf("SendOn: %v", err)
	}
	if err := d.SendOff(context.Background()); err != nil {
		t.Fatalf("SendOff: %v", err)
	}

	payloads := sender.payloads()
	if len(payloads) != 2 || payloads[0] != CommandOn || payloads[1] != CommandOff {
		t.Errorf("payloads = %v, want [A B]", payloads)
	}
}
