package detector

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ccollicutt/logsniff/pkg/formats"
	"github.com/ccollicutt/logsniff/pkg/reader"
	"github.com/ccollicutt/logsniff/pkg/registry"
)

func newDetector(t *testing.T, opts ...Option) *Detector {
	t.Helper()
	reg, err := formats.NewRegistry()
	require.NoError(t, err)
	reg.Freeze()
	return New(reg, opts...)
}

func msgpackFrames(t *testing.T, n int) []byte {
	t.Helper()
	var out []byte
	for i := 0; i < n; i++ {
		body, err := msgpack.Marshal(map[string]any{"seq": i})
		require.NoError(t, err)
		hdr := make([]byte, 4)
		binary.BigEndian.PutUint32(hdr, uint32(len(body)))
		out = append(out, hdr...)
		out = append(out, body...)
	}
	return out
}

func repeat(line string, n int) []byte {
	return []byte(strings.Repeat(line+"\n", n))
}

func TestDetect_Builtins(t *testing.T) {
	tests := []struct {
		format string
		stage  registry.Stage
		sample []byte
	}{
		{"msgpack", registry.StageSignature, msgpackFrames(t, 3)},
		{"elf", registry.StageStructural, []byte("#Version: 1.0\n#Fields: date time c-ip\n2024-01-15 10:30:00 10.0.0.1\n")},
		{"clf", registry.StageStructural, repeat(`127.0.0.1 - frank [10/Oct/2000:13:55:36 -0700] "GET /apache_pb.gif HTTP/1.0" 200 2326`, 3)},
		{"syslog", registry.StageStructural, repeat("Jun 14 15:16:01 combo sshd(pam_unix)[19939]: authentication failure", 3)},
		{"apache-error", registry.StageStructural, repeat("[Sun Dec 04 04:47:44 2005] [error] mod_jk child workerEnv in error state 6", 3)},
		{"cef", registry.StageStructural, repeat("Sep 19 08:26:10 host CEF:0|Security|threatmanager|1.0|100|worm stopped|10|src=10.0.0.1", 3)},
		{"applog", registry.StageStructural, []byte("2024-01-15 10:00:00,123 ERROR boom\n\tat Main.run(Main.java:10)\n2024-01-15 10:00:01,000 INFO ok\n")},
		{"json-lines", registry.StageContent, repeat(`{"ts":"2024-01-15T10:00:00Z","level":"info"}`, 3)},
		{"json", registry.StageContent, []byte("[\n  {\"a\": 1},\n  {\"a\": 2}\n]\n")},
		{"xml", registry.StageContent, []byte("<?xml version=\"1.0\"?>\n<log>\n<entry><msg>x</msg></entry>\n</log>\n")},
		{"logfmt", registry.StageContent, repeat(`level=info msg="request done" status=200`, 3)},
		{"csv", registry.StageContent, []byte("timestamp,user,action\n2024-01-15,alice,login\n")},
		{"tsv", registry.StageContent, []byte("timestamp\tuser\taction\n2024-01-15\talice\tlogin\n")},
		{"browsing", registry.StageKeyword, repeat("20240115103000 10.0.0.1 jdoe https://www.example.com/ 5120 200 text/html news laptop", 3)},
		{"virus", registry.StageKeyword, repeat(`20240115103000 10.0.0.2 jdoe Trojan.Generic C:\tmp\a.exe quarantined clamav high`, 3)},
		{"mail", registry.StageKeyword, repeat("20240115103000 alice@example.com bob@example.org Invoice 20480 delivered 1 0.1", 3)},
		{"firewall", registry.StageKeyword, repeat("20240115103000 DENY TCP 10.0.0.5 51515 10.0.0.9 22 eth0 R12 blocked", 3)},
		{"auth", registry.StageKeyword, repeat("20240115103000 jdoe 10.0.0.7 sshd failed password invalid", 3)},
		{"system", registry.StageKeyword, repeat("20240115103000 web01 cron 4242 NOTICE job restarted", 3)},
		{"application", registry.StageKeyword, repeat("20240115103000 billing ERROR api thread-7 req-42 NullPointerException thrown", 3)},
		{"ids", registry.StageKeyword, repeat("20240115103000 A-1001 high scan 10.0.0.3 10.0.0.4 TCP ET-SCAN possible intrusion attempt", 3)},
		{"vpn", registry.StageKeyword, repeat("20240115103000 jdoe 203.0.113.9 S-77 tunnel-up 3600 1048576 2097152", 3)},
	}

	d := newDetector(t)
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			res, err := d.Detect(tt.sample, "")
			require.NoError(t, err)
			assert.Equal(t, tt.format, res.Format)
			assert.Equal(t, tt.stage, res.Stage)
			assert.Equal(t, reader.None, res.Container)
		})
	}
}

func TestDetect_Extension(t *testing.T) {
	d := newDetector(t)

	tests := []struct {
		name   string
		hint   string
		sample string
		want   string
	}{
		{"json array", "events.json", "[{\"a\":1}]", "json"},
		{"json lines by json suffix", "events.json", "{\"a\":1}\n", "json-lines"},
		{"ndjson", "events.ndjson", "{\"a\":1}\n", "json-lines"},
		{"csv ignores content", "export.CSV", "anything at all\n", "csv"},
		{"tsv", "export.tsv", "a\tb\n", "tsv"},
		{"xml", "feed.xml", "<a/>\n", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := d.Detect([]byte(tt.sample), tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Format)
			assert.Equal(t, registry.StageExtension, res.Stage)
		})
	}

	res, err := d.Detect([]byte("Jun 14 15:16:01 combo sshd: hi\n"), "messages.log")
	require.NoError(t, err)
	assert.Equal(t, "syslog", res.Format, "unknown suffixes fall through")
}

func TestDetect_Containers(t *testing.T) {
	d := newDetector(t)

	res, err := d.Detect([]byte("ignored"), "app.jsonl.gz")
	require.NoError(t, err)
	assert.Equal(t, reader.Gzip, res.Container)
	assert.Equal(t, registry.StageExtension, res.Stage)
	assert.Empty(t, res.Format)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err = zw.Write(repeat("Jun 14 15:16:01 combo sshd: hi", 2))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	res, err = d.Detect(buf.Bytes(), "")
	require.NoError(t, err)
	assert.Equal(t, reader.Gzip, res.Container)
	assert.Equal(t, registry.StageSignature, res.Stage)

	res, err = d.DetectDecompressed([]byte("{\"a\":1}\n"), "app.jsonl.gz")
	require.NoError(t, err)
	assert.Equal(t, "json-lines", res.Format)
	assert.Equal(t, registry.StageExtension, res.Stage)

	res, err = d.DetectDecompressed([]byte("BZh91AY&SY\x01\x02\x03"), "blob")
	assert.Nil(t, res, "containers are not considered after decompression")
	var undetected *UndetectedFormatError
	assert.True(t, errors.As(err, &undetected))
}

func TestDetect_KeywordTieBreak(t *testing.T) {
	sample := repeat("20240115103000 firewall login", 2)

	res, err := newDetector(t).Detect(sample, "")
	require.NoError(t, err)
	assert.Equal(t, "firewall", res.Format)
	assert.Equal(t, 2, res.Score)

	res, err = newDetector(t, WithKeywordPolicy(KeywordPolicy{Priority: []string{"auth", "firewall"}})).Detect(sample, "")
	require.NoError(t, err)
	assert.Equal(t, "auth", res.Format)
}

func TestDetect_KeywordHighestScoreWins(t *testing.T) {
	sample := []byte("20240115103000 firewall login\n" +
		"20240115103000 user logout\n" +
		"20240115103000 session expired\n")
	res, err := newDetector(t).Detect(sample, "")
	require.NoError(t, err)
	assert.Equal(t, "auth", res.Format)
	assert.Equal(t, 3, res.Score)
	assert.Equal(t, "20240115103000 firewall login", res.Line)
}

func TestDetect_KeywordMinScore(t *testing.T) {
	sample := repeat("20240115103000 tunnel", 2)
	d := newDetector(t, WithKeywordPolicy(KeywordPolicy{MinScore: 3}))

	_, err := d.Detect(sample, "")
	var undetected *UndetectedFormatError
	require.True(t, errors.As(err, &undetected))
	assert.Equal(t, 2, undetected.SampledLines)
}

func TestDetect_ShortInputs(t *testing.T) {
	d := newDetector(t)
	inputs := [][]byte{nil, {}, []byte("\n\n"), []byte("a"), []byte("{"), []byte("["), []byte{0x1f}, []byte{0, 0, 0, 9}, []byte("\xEF\xBB\xBF")}

	for _, in := range inputs {
		assert.NotPanics(t, func() {
			res, err := d.Detect(in, "")
			if err == nil {
				assert.NotNil(t, res)
			}
		})
	}

	_, err := d.Detect(nil, "empty.log")
	var undetected *UndetectedFormatError
	require.True(t, errors.As(err, &undetected))
	assert.Equal(t, "empty.log", undetected.Hint)
	assert.Contains(t, err.Error(), "empty.log")
}

func TestDetect_UndetectedGibberish(t *testing.T) {
	_, err := newDetector(t).Detect(repeat("qqq zzz 123", 5), "")
	var undetected *UndetectedFormatError
	require.True(t, errors.As(err, &undetected))
	assert.Equal(t, 5, undetected.SampledLines)
}

func TestExplain(t *testing.T) {
	d := newDetector(t)
	tr := d.Explain(repeat("Jun 14 15:16:01 combo sshd: hi", 2), "", true)

	require.NoError(t, tr.Err)
	require.NotNil(t, tr.Result)
	assert.Equal(t, "syslog", tr.Result.Format)
	assert.Len(t, tr.Lines, 2)

	require.Len(t, tr.Steps, 3)
	assert.False(t, tr.Steps[0].Matched)
	assert.True(t, tr.Steps[2].Matched)
	assert.Equal(t, []string{"elf", "clf", "cef"}, tr.Steps[2].Rejected)

	tr = d.Explain(repeat("20240115103000 tunnel", 2), "", true)
	last := tr.Steps[len(tr.Steps)-1]
	assert.Equal(t, registry.StageKeyword, last.Stage)
	assert.Equal(t, 2, last.Scores["vpn"])
	assert.Equal(t, 0, last.Scores["mail"])
}

func TestSampleLines(t *testing.T) {
	tests := []struct {
		name   string
		sample string
		max    int
		want   []string
	}{
		{"drops partial tail", "one\ntwo\nthr", 10, []string{"one", "two"}},
		{"keeps lone partial", "only", 10, []string{"only"}},
		{"skips blanks and CR", "\r\none\r\n\n  \ntwo\n", 10, []string{"one", "two"}},
		{"limit", "a\nb\nc\n", 2, []string{"a", "b"}},
		{"strips BOM", "\xEF\xBB\xBFfirst\n", 10, []string{"first"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SampleLines([]byte(tt.sample), tt.max))
		})
	}
}
