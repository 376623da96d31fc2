package model

import "testing"

// TestSyncStatusRoundTrip проверяет явное преобразование статуса
// в хранимое представление и обратно.
func TestSyncStatusRoundTrip(t *testing.T) {
	for _, status := range []SyncStatus{SyncStatusSynced, SyncStatusFailed} {
		got, err := SyncStatusFromInt16(status.Int16())
		if err != nil {
			t.Fatalf("SyncStatusFromInt16(%d): неожиданная ошибка %v", status.Int16(), err)
		}
		if got != status {
			t.Errorf("round-trip %v → %d → %v", status, status.Int16(), got)
		}
	}
}

// TestSyncStatusFromInt16_Unknown проверяет, что неизвестные значения
// отклоняются, а не маппятся в дефолт.
func TestSyncStatusFromInt16_Unknown(t *testing.T) {
	for _, v := range []int16{0, 3, -1, 100} {
		if _, err := SyncStatusFromInt16(v); err == nil {
			t.Errorf("SyncStatusFromInt16(%d): ожидалась ошибка", v)
		}
	}
}

func TestSyncStatusString(t *testing.T) {
	if SyncStatusSynced.String() != "synced" {
		t.Errorf("SyncStatusSynced.String() = %q", SyncStatusSynced.String())
	}
	if SyncStatusFailed.String() != "failed" {
		t.Errorf("SyncStatusFailed.String() = %q", SyncStatusFailed.String())
	}
}
