package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	key         string
	data        []byte
	contentType string
	uploadErr   error
}

func (u *fakeUploader) UploadBytes(_ context.Context, key string, data []byte, contentType string) (string, error) {
	if u.uploadErr != nil {
		return "", u.uploadErr
	}
	u.key, u.data, u.contentType = key, data, contentType
	return "https://cdn.example.com/" + key, nil
}

func (u *fakeUploader) GetPresignedURL(key string, expiration time.Duration) (string, error) {
	return "https://signed.example.com/" + key + "?ttl=" + expiration.String(), nil
}

func TestExportLedger(t *testing.T) {
	f := newFixture(t)
	course := f.publishedCourse(t, instructor.UserID, "Go, the hard way", 1000)
	first := f.checkout(t, student, course, "pay_1").Purchase
	_, err := f.purchases.RequestRefund(context.Background(), student, first.ID)
	require.NoError(t, err)
	f.checkout(t, otherStudent, course, "pay_2")

	up := &fakeUploader{}
	exporter := NewReportExporter(f.db, up, discardLogger())
	exporter.now = f.clock.Now

	res, err := exporter.ExportLedger(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.True(t, strings.HasPrefix(res.Key, "exports/revenue/"))
	assert.True(t, strings.HasSuffix(res.Key, "_ledger.csv"))
	assert.Equal(t, f.clock.Now().Add(15*time.Minute).UTC(), res.ExpiresAt)
	assert.Contains(t, res.URL, res.Key)
	assert.Equal(t, "text/csv", up.contentType)

	records, err := csv.NewReader(bytes.NewReader(up.data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, ledgerCSVHeader, records[0])

	refunded := records[1]
	assert.Equal(t, "pay_1", refunded[2])
	assert.Equal(t, "Go, the hard way", refunded[4])
	assert.Equal(t, "refunded", refunded[7])
	assert.Equal(t, "1100", refunded[10])
	assert.Equal(t, "100", refunded[16])
	assert.NotEmpty(t, refunded[18])

	live := records[2]
	assert.Equal(t, "purchased", live[7])
	assert.Empty(t, live[16])
	assert.Empty(t, live[18])
}

func TestExportLedger_Rejections(t *testing.T) {
	f := newFixture(t)

	_, err := NewReportExporter(f.db, &fakeUploader{}, discardLogger()).ExportLedger(context.Background(), instructor)
	assert.Equal(t, KindUnauthorized, KindOf(err))

	_, err = NewReportExporter(f.db, nil, discardLogger()).ExportLedger(context.Background(), admin)
	assert.Equal(t, KindUnavailable, KindOf(err))

	_, err = NewReportExporter(f.db, &fakeUploader{uploadErr: errors.New("bucket gone")}, discardLogger()).ExportLedger(context.Background(), admin)
	assert.Equal(t, KindUnavailable, KindOf(err))
}
