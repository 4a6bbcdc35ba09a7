package formats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccollicutt/logsniff/pkg/parser"
	"github.com/ccollicutt/logsniff/pkg/registry"
)

func TestRegisterBuiltins_DetectionOrder(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	var structural []string
	for _, d := range r.Stage(registry.StageStructural) {
		structural = append(structural, d.ID)
	}
	assert.Equal(t, []string{"elf", "clf", "cef", "syslog", "apache-error", "applog"}, structural)

	var content []string
	for _, d := range r.Stage(registry.StageContent) {
		content = append(content, d.ID)
	}
	assert.Equal(t, []string{"json-lines", "json", "xml", "logfmt", "csv", "tsv"}, content)

	var keyword []string
	for _, d := range r.Stage(registry.StageKeyword) {
		keyword = append(keyword, d.ID)
	}
	assert.Equal(t, KeywordPriority(), keyword)
	assert.Equal(t, []string{"browsing", "virus", "mail", "firewall", "auth", "system", "application", "ids", "vpn"}, keyword)
}

func TestRegisterBuiltins_Twice(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	err = RegisterBuiltins(r)
	var dup *registry.DuplicateFormatError
	assert.ErrorAs(t, err, &dup)
}

func TestDefault_Once(t *testing.T) {
	a, err := Default()
	require.NoError(t, err)
	b, err := Default()
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = a.Resolve("syslog")
	assert.NoError(t, err)
}

func TestBuiltins_Constructors(t *testing.T) {
	for _, d := range Builtins() {
		t.Run(d.ID, func(t *testing.T) {
			p := d.New()
			require.NotNil(t, p)
			assert.Equal(t, d.Family, p.Family())
			if d.Family == parser.Block || d.Family == parser.Binary {
				assert.True(t, d.Sequential, "stateful families are parsed sequentially")
			}
		})
	}
}

func TestKeywords_ColumnParsers(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	d, err := r.Resolve("firewall")
	require.NoError(t, err)

	recs := d.New().Parse(&parser.RawChunk{
		Data:      []byte("20240115103000 DENY TCP 10.0.0.5 51515 10.0.0.9 22 eth0 R12 blocked by policy\n"),
		FirstLine: 1,
	})
	rec, err := recs.Next()
	require.NoError(t, err)

	assert.Equal(t, []string{"timestamp", "action", "protocol", "src_ip", "src_port", "dst_ip", "dst_port", "interface", "rule_id", "description"}, rec.Names())
	desc, _ := rec.Text("description")
	assert.Equal(t, "blocked by policy", desc)
}

func TestJSONRules(t *testing.T) {
	assert.True(t, isJSONArrayStart("["))
	assert.True(t, isJSONArrayStart(`[{"a":1},`))
	assert.True(t, isJSONArrayStart(`[1, 2]`))
	assert.False(t, isJSONArrayStart(`[Sun Dec 04 04:47:44 2005] [error] x`))
	assert.False(t, isJSONArrayStart(`{"a":1}`))

	assert.True(t, startsWith([]byte("\xEF\xBB\xBF \n["), '['))
	assert.False(t, startsWith(nil, '['))
}
