package source

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(t *testing.T, doc string) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(doc), &m))
	return m
}

func TestJobCode(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "apply analyze with query",
			doc:  `{"link":{"applyAnalyze":"https://www.104.com.tw/jobs/apply/analysis/8abc1?channel=104rpt&jobsource=2018indexpoc"}}`,
			want: "8abc1",
		},
		{
			name: "protocol relative",
			doc:  `{"link":{"applyAnalyze":"//www.104.com.tw/jobs/apply/analysis/7x9zq"}}`,
			want: "7x9zq",
		},
		{
			name: "trailing slash",
			doc:  `{"link":{"applyAnalyze":"https://www.104.com.tw/jobs/apply/analysis/7x9zq/"}}`,
			want: "7x9zq",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := JobCode(item(t, tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestJobCode_Missing(t *testing.T) {
	for _, doc := range []string{
		`{"jobNo":"99"}`,
		`{"jobNo":"99","link":{}}`,
		`{"jobNo":"99","link":{"applyAnalyze":""}}`,
		`{"jobNo":"99","link":"not an object"}`,
		`{"jobNo":"99","link":{"applyAnalyze":"https://www.104.com.tw/"}}`,
	} {
		_, err := JobCode(item(t, doc))
		var ae *ItemAddressingError
		require.ErrorAs(t, err, &ae, doc)
		assert.Equal(t, "99", ae.JobNo)
	}
}

func TestEmployerCode(t *testing.T) {
	assert.Equal(t, "1a2x6bk4sd", EmployerCode("https://www.104.com.tw/company/1a2x6bk4sd"))
	assert.Equal(t, "1a2x6bk4sd", EmployerCode("https://www.104.com.tw/company/1a2x6bk4sd?jobsource=checkc"))
	assert.Equal(t, "", EmployerCode(""))
}
