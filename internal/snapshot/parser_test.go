package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var observedAt = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

func TestParseJSON_KeepsOnlyActiveWirelessEntries(t *testing.T) {
	raw := []byte(`while(1); /*[
		{"MACAddress":"aa:bb:cc:00:00:01","IPAddress":"192.168.1.10","HostName":"alice","Active":true,"WirelessActive":true,"Status":"ONLINE"},
		{"MACAddress":"aa:bb:cc:00:00:02","IPAddress":"192.168.1.11","HostName":"bob","Active":true,"WirelessActive":false},
		{"MACAddress":"aa:bb:cc:00:00:03","IPAddress":"192.168.1.12","HostName":"carol","Active":false,"WirelessActive":true},
		{"MACAddress":"aa:bb:cc:00:00:04","Active":"1","WirelessActive":1}
	]*/`)

	sightings, err := Parse(raw, FormatJSON, observedAt)
	require.NoError(t, err)
	require.Len(t, sightings, 2)

	assert.Equal(t, "AA:BB:CC:00:00:01", sightings[0].MACAddress)
	assert.Equal(t, "192.168.1.10", sightings[0].IPAddress)
	assert.Equal(t, "alice", sightings[0].Hostname)
	assert.Equal(t, "online", sightings[0].Status)
	assert.Equal(t, observedAt, sightings[0].ObservedAt)

	assert.Equal(t, "AA:BB:CC:00:00:04", sightings[1].MACAddress)
	assert.Equal(t, "N/A", sightings[1].IPAddress)
	assert.Equal(t, "N/A", sightings[1].Hostname)
	assert.Equal(t, "online", sightings[1].Status)
}

func TestParseJSON_ObjectWithDeviceList(t *testing.T) {
	raw := []byte(`{"devices":[{"mac":"aa-bb-cc-00-00-05","ip":"10.0.0.5","hostname":"dave","active":true,"wireless_active":true}]}`)

	sightings, err := Parse(raw, FormatJSON, observedAt)
	require.NoError(t, err)
	require.Len(t, sightings, 1)
	assert.Equal(t, "AA:BB:CC:00:00:05", sightings[0].MACAddress)
}

func TestParseJSON_MalformedPayloadIsEmptyNotError(t *testing.T) {
	sightings, err := Parse([]byte(`while(1); /*[{"MACAddress":`), FormatJSON, observedAt)
	require.NoError(t, err)
	assert.Empty(t, sightings)
	assert.NotNil(t, sightings)
}

func TestParseJSON_SkipsNonObjectEntries(t *testing.T) {
	raw := []byte(`[42, {"MACAddress":"aa:bb:cc:00:00:06","Active":true,"WirelessActive":true}]`)

	sightings, skipped := parseJSON(raw, observedAt)
	require.Len(t, sightings, 1)
	require.Len(t, skipped, 1)
	assert.Equal(t, 0, skipped[0].Index)
}

const embeddedPage = `
<script>
var UserDevinfo = new Array(
new USERDeviceNew("InternetGatewayDevice.LANDevice.1","192\x2e168\x2e1\x2e5","aa\x3abb\x3acc\x3add\x3aee\x3aff","SSID1","DHCP","PC","Online","WIFI","01\x3a20\x3a05","--","alice-laptop","",""),
new USERDeviceNew("InternetGatewayDevice.LANDevice.1","192\x2e168\x2e1\x2e6","aa\x3abb\x3acc\x3add\x3aee\x3a00","SSID1","DHCP","PC","Offline","WIFI","00\x3a00\x3a00","--","bob-phone","",""),
new USERDeviceNew("InternetGatewayDevice.LANDevice.1",
  "192\x2e168\x2e1\x2e7",
  "aa\x3abb\x3acc\x3add\x3aee\x3a01","SSID1","DHCP","PC","Online","WIFI","00\x3a05\x3a00","--","","",""),
new USERDeviceNew("broken","1\x2e1\x2e1\x2e1"),
null);
</script>`

func TestParseEmbedded_OnlineOnlyWithUnescapedFields(t *testing.T) {
	sightings, err := Parse([]byte(embeddedPage), FormatEmbedded, observedAt)
	require.NoError(t, err)
	require.Len(t, sightings, 2)

	assert.Equal(t, "192.168.1.5", sightings[0].IPAddress)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", sightings[0].MACAddress)
	assert.Equal(t, "alice-laptop", sightings[0].Hostname)
	assert.Equal(t, "01:20:05", sightings[0].ConnectedFor)
	assert.Equal(t, "online", sightings[0].Status)

	assert.Equal(t, "192.168.1.7", sightings[1].IPAddress)
	assert.Equal(t, "N/A", sightings[1].Hostname)
}

func TestParseEmbedded_ReportsWrongFieldCount(t *testing.T) {
	_, skipped := parseEmbedded([]byte(embeddedPage), DefaultConstructor, observedAt)
	require.Len(t, skipped, 1)
	assert.Equal(t, 3, skipped[0].Index)
	assert.Contains(t, skipped[0].Error(), "expected at least 11 fields")
}

func TestParseEmbedded_NoDevices(t *testing.T) {
	sightings, err := Parse([]byte("<html></html>"), FormatEmbedded, observedAt)
	require.NoError(t, err)
	assert.Empty(t, sightings)
}

func TestParse_CustomConstructor(t *testing.T) {
	page := `HostEntry("d","10\x2e0\x2e0\x2e9","00\x3a11\x3a22\x3a33\x3a44\x3a55","p","t","PC","Online","W","","","erin")`
	parser := NewParser(testLogger(), WithConstructor("HostEntry"))

	sightings, err := parser.Parse([]byte(page), FormatEmbedded, observedAt)
	require.NoError(t, err)
	require.Len(t, sightings, 1)
	assert.Equal(t, "erin", sightings[0].Hostname)
	assert.Equal(t, "10.0.0.9", sightings[0].IPAddress)
}

func TestParse_UnknownFormat(t *testing.T) {
	_, err := Parse([]byte("[]"), Format("xml"), observedAt)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("csv")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
