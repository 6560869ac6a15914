package auditdoc

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleAudit = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<ns2:Audit xmlns:ns2="xmlns://www.fortify.com/schema/audit" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" version="4.4">
    <ns2:ProjectInfo>
        <ns2:Name>WebGoat</ns2:Name>
        <ns2:ProjectVersionId>42</ns2:ProjectVersionId>
    </ns2:ProjectInfo>
    <ns2:IssueList>
        <ns2:Issue instanceId="AAA" suppressed="false" revision="2">
            <ns2:Tag id="87f2364f-dcd4-49e6-861d-f8d3f351686b">
                <ns2:Value>Not Set</ns2:Value>
            </ns2:Tag>
            <ns2:Tag id="custom-tag"><ns2:Value>keep &amp; me</ns2:Value></ns2:Tag>
            <ns2:ThreadedComments>
                <ns2:Comment>
                    <ns2:Content>looked at this</ns2:Content>
                    <ns2:Username>alice</ns2:Username>
                    <ns2:Timestamp>2024-01-02T10:00:00.000+00:00</ns2:Timestamp>
                </ns2:Comment>
                <ns2:Attachment name="screenshot.png"/>
            </ns2:ThreadedComments>
            <ns2:Attachment name="notes.txt"/>
            <ns2:ClientAuditTrail>
                <ns2:TagHistory>
                    <ns2:Tag id="custom-tag"><ns2:Value>keep &amp; me</ns2:Value></ns2:Tag>
                    <ns2:EditTime>2024-01-02T10:00:00.000+00:00</ns2:EditTime>
                    <ns2:Username>alice</ns2:Username>
                </ns2:TagHistory>
                <ns2:Note author="bob">reviewed offline</ns2:Note>
            </ns2:ClientAuditTrail>
        </ns2:Issue>
        <ns2:Issue instanceId="BBB" suppressed="true" revision="0"/>
    </ns2:IssueList>
    <ns2:RemovedIssues count="1"><ns2:Issue instanceId="ZZZ"/></ns2:RemovedIssues>
</ns2:Audit>
`

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(sampleAudit))
	require.NoError(t, err)
	require.Equal(t, 2, doc.Len())

	a := doc.Issue("AAA")
	require.NotNil(t, a)
	assert.False(t, a.Suppressed)
	assert.Equal(t, 2, a.Revision)
	assert.False(t, a.IsNew())
	assert.Equal(t, "Not Set", a.TagValue("87F2364F-DCD4-49E6-861D-F8D3F351686B"))
	assert.Equal(t, "keep & me", a.TagValue("custom-tag"))
	require.Len(t, a.Comments, 1)
	assert.Equal(t, "looked at this", a.Comments[0].Content)
	assert.Equal(t, "alice", a.Comments[0].Username)
	require.Len(t, a.Trail, 1)
	assert.Equal(t, []Tag{{ID: "custom-tag", Value: "keep & me"}}, a.Trail[0].Changes)

	b := doc.Issue("BBB")
	require.NotNil(t, b)
	assert.True(t, b.Suppressed)
	assert.Empty(t, b.Tags)

	assert.Nil(t, doc.Issue("ZZZ"), "removed issues are not audit records")
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"wrong root", `<FilterTemplate/>`},
		{"truncated", `<ns2:Audit xmlns:ns2="x"><ns2:IssueList><ns2:Issue instanceId="A">`},
		{"issue without id", `<Audit><IssueList><Issue/></IssueList></Audit>`},
		{"duplicate issue", `<Audit><IssueList><Issue instanceId="A"/><Issue instanceId="A"/></IssueList></Audit>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestRoundTripPreservesUnmodelledContent(t *testing.T) {
	doc, err := Parse([]byte(sampleAudit))
	require.NoError(t, err)

	out, err := doc.Bytes()
	require.NoError(t, err)

	for _, want := range []string{
		`<ns2:Name>WebGoat</ns2:Name>`,
		`<ns2:Attachment name="notes.txt"/>`,
		`<ns2:RemovedIssues count="1"><ns2:Issue instanceId="ZZZ"/></ns2:RemovedIssues>`,
		`<ns2:Content>looked at this</ns2:Content>`,
		`<ns2:Attachment name="screenshot.png"/>`,
		`<ns2:Note author="bob">reviewed offline</ns2:Note>`,
		`xmlns:ns2="xmlns://www.fortify.com/schema/audit"`,
	} {
		assert.Contains(t, string(out), want)
	}

	// the unmodelled children stay inside their containers
	comments := string(out[bytes.Index(out, []byte("<ns2:ThreadedComments>")):bytes.Index(out, []byte("</ns2:ThreadedComments>"))])
	assert.Contains(t, comments, `<ns2:Attachment name="screenshot.png"/>`)
	trail := string(out[bytes.Index(out, []byte("<ns2:ClientAuditTrail>")):bytes.Index(out, []byte("</ns2:ClientAuditTrail>"))])
	assert.Contains(t, trail, `<ns2:Note author="bob">reviewed offline</ns2:Note>`)

	again, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, doc.Len(), again.Len())
	assert.Equal(t, doc.Issue("AAA").Tags, again.Issue("AAA").Tags)
	assert.Equal(t, doc.Issue("AAA").Revision, again.Issue("AAA").Revision)
	assert.Len(t, again.Issue("AAA").Comments, 1)
	assert.Len(t, again.Issue("AAA").Trail, 1)
}

func TestMutationsSurviveEncoding(t *testing.T) {
	doc, err := Parse([]byte(sampleAudit))
	require.NoError(t, err)

	a := doc.Issue("AAA")
	assert.True(t, a.SetTag("87f2364f-dcd4-49e6-861d-f8d3f351686b", "Exploitable"))
	assert.False(t, a.SetTag("custom-tag", "keep & me"), "unchanged value")
	a.AddComment("<triage> says fix", "Fortify Aviator", "2024-05-01T00:00:00.000Z")
	a.AddTrail([]Tag{{ID: "87f2364f-dcd4-49e6-861d-f8d3f351686b", Value: "Exploitable"}}, "2024-05-01T00:00:00.000Z", "Fortify Aviator")
	a.Revision++

	n := doc.AddIssue("CCC")
	assert.True(t, n.IsNew())
	assert.Same(t, n, doc.AddIssue("CCC"))
	n.SetTag("FB7B0462-2C2E-46D9-811A-DCC1F3C83051", "PROCESSED_BY_AVIATOR")

	var buf bytes.Buffer
	require.NoError(t, doc.Encode(&buf))
	assert.Contains(t, buf.String(), `<ns2:Attachment name="screenshot.png"/>`)
	assert.Contains(t, buf.String(), `<ns2:Note author="bob">reviewed offline</ns2:Note>`)

	again, err := Parse(buf.Bytes())
	require.NoError(t, err)

	ra := again.Issue("AAA")
	assert.Equal(t, 3, ra.Revision)
	assert.Equal(t, "Exploitable", ra.TagValue("87f2364f-dcd4-49e6-861d-f8d3f351686b"))
	assert.Equal(t, "keep & me", ra.TagValue("custom-tag"))
	require.Len(t, ra.Comments, 2)
	assert.Equal(t, "looked at this", ra.Comments[0].Content)
	assert.Equal(t, "<triage> says fix", ra.Comments[1].Content)
	require.Len(t, ra.Trail, 2)
	assert.Equal(t, "Fortify Aviator", ra.Trail[1].Username)

	rc := again.Issue("CCC")
	require.NotNil(t, rc)
	assert.Equal(t, 0, rc.Revision)
	assert.False(t, rc.IsNew(), "issues read back from a document are not new")
	assert.Equal(t, "PROCESSED_BY_AVIATOR", rc.TagValue("fb7b0462-2c2e-46d9-811a-dcc1f3c83051"))
}

func TestNew(t *testing.T) {
	now := time.Date(2024, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
	doc := New(now)
	assert.Equal(t, 0, doc.Len())

	out, err := doc.Bytes()
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, `<ns2:Audit xmlns:ns2="xmlns://www.fortify.com/schema/audit"`)
	assert.Contains(t, s, `version="4.4"`)
	assert.Contains(t, s, `<ns2:Name>Unknown Project</ns2:Name>`)
	assert.Contains(t, s, `<ns2:ProjectVersionId>-1</ns2:ProjectVersionId>`)
	assert.Contains(t, s, `<ns2:WriteDate>2024-03-04T05:06:07.008Z</ns2:WriteDate>`)
	assert.Contains(t, s, `<ns2:IssueList/>`)

	parsed, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, 0, parsed.Len())
}

func TestIssue_HasPendingResult(t *testing.T) {
	issue := &Issue{}
	assert.True(t, issue.HasPendingResult("r"))
	issue.SetTag("r", "Not Set")
	assert.True(t, issue.HasPendingResult("r"))
	issue.SetTag("r", "Exploitable")
	assert.False(t, issue.HasPendingResult("r"))
}

func TestIssue_AddTrailIgnoresEmpty(t *testing.T) {
	issue := &Issue{}
	issue.AddTrail(nil, "t", "u")
	assert.Empty(t, issue.Trail)
}
