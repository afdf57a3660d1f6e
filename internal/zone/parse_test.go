package zone

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/driftdns/driftdns/internal/dnswire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLInheritanceExplicitWins(t *testing.T) {
	text := `
$ORIGIN example.com.
@   3600 IN SOA ns1.example.com. hostmaster.example.com. 1 3600 900 604800 86400
@   IN NS ns1.example.com.
ns1 300 IN A 192.0.2.1
www 60  IN A 192.0.2.2
`
	z, _, err := ParseText(text, "example.com.")
	require.NoError(t, err)

	res := z.Lookup("ns1.example.com", uint16(dnswire.TypeA))
	require.Equal(t, KindAnswer, res.Kind)
	assert.Equal(t, uint32(300), res.Records[0].TTL)

	res = z.Lookup("www.example.com", uint16(dnswire.TypeA))
	assert.Equal(t, uint32(60), res.Records[0].TTL)
}

func TestTTLInheritanceCarriesFromPriorLine(t *testing.T) {
	text := `
$ORIGIN example.com.
@   3600 IN SOA ns1.example.com. hostmaster.example.com. 1 3600 900 604800 86400
@   IN NS ns1.example.com.
ns1 300 IN A 192.0.2.1
www IN A 192.0.2.2
`
	z, _, err := ParseText(text, "example.com.")
	require.NoError(t, err)

	res := z.Lookup("www.example.com", uint16(dnswire.TypeA))
	require.Equal(t, KindAnswer, res.Kind)
	assert.Equal(t, uint32(300), res.Records[0].TTL, "www should inherit the most recent explicit TTL, not the SOA minimum")
}

func TestTTLInheritanceFallsBackToSOAMinimum(t *testing.T) {
	text := `
$ORIGIN example.com.
@   IN SOA ns1.example.com. hostmaster.example.com. 1 3600 900 604800 86400
@   IN NS ns1.example.com.
ns1 IN A 192.0.2.1
`
	z, _, err := ParseText(text, "example.com.")
	require.NoError(t, err)

	res := z.Lookup("ns1.example.com", uint16(dnswire.TypeA))
	require.Equal(t, KindAnswer, res.Kind)
	assert.Equal(t, uint32(86400), res.Records[0].TTL, "no prior explicit TTL: should fall back to SOA minimum")
}

func TestOwnerNameInheritance(t *testing.T) {
	text := `
$ORIGIN example.com.
@   3600 IN SOA ns1.example.com. hostmaster.example.com. 1 3600 900 604800 86400
@   IN NS ns1.example.com.
www IN A 192.0.2.1
    IN A 192.0.2.2
`
	z, _, err := ParseText(text, "example.com.")
	require.NoError(t, err)

	res := z.Lookup("www.example.com", uint16(dnswire.TypeA))
	require.Equal(t, KindAnswer, res.Kind)
	assert.Len(t, res.Records, 2, "owner-less line should inherit the previous record's owner")
}

func TestParenthesizedMultilineRecord(t *testing.T) {
	text := `
$ORIGIN example.com.
@ ( 3600 IN SOA ns1.example.com. hostmaster.example.com. (
		1
		3600
		900
		604800
		86400 ) )
@   IN NS ns1.example.com.
`
	z, _, err := ParseText(text, "example.com.")
	require.NoError(t, err)
	soa, ok := z.SOA()
	require.True(t, ok)
	assert.Equal(t, uint32(1), soa.Data.(dnswire.SOAData).Serial)
}

func TestCommentsStripped(t *testing.T) {
	text := `
$ORIGIN example.com. ; the zone origin
@   3600 IN SOA ns1.example.com. hostmaster.example.com. 1 3600 900 604800 86400 ; serial etc
@   IN NS ns1.example.com. ; primary nameserver
`
	_, _, err := ParseText(text, "example.com.")
	require.NoError(t, err)
}

func TestUnsupportedTypeIsFatal(t *testing.T) {
	text := `
$ORIGIN example.com.
@   3600 IN SOA ns1.example.com. hostmaster.example.com. 1 3600 900 604800 86400
@   IN NS ns1.example.com.
@   IN AAAA 2001:db8::1
`
	_, _, err := ParseText(text, "example.com.")
	require.ErrorIs(t, err, ErrInvalidZone)
}

func TestLoadFileWithInclude(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "hosts.zone")
	require.NoError(t, os.WriteFile(sub, []byte(`
www 120 IN A 192.0.2.20
mail    IN A 192.0.2.30
`), 0o644))

	main := filepath.Join(dir, "example.com.zone")
	require.NoError(t, os.WriteFile(main, []byte(`
$ORIGIN example.com.
@ 3600 IN SOA ns1.example.com. hostmaster.example.com. 1 3600 900 604800 86400
@ IN NS ns1.example.com.
ns1 IN A 192.0.2.1
$INCLUDE hosts.zone
`), 0o644))

	z, _, err := LoadFile(main)
	require.NoError(t, err)

	res := z.Lookup("www.example.com", uint16(dnswire.TypeA))
	require.Equal(t, KindAnswer, res.Kind)
	assert.Equal(t, uint32(120), res.Records[0].TTL)

	res = z.Lookup("mail.example.com", uint16(dnswire.TypeA))
	require.Equal(t, KindAnswer, res.Kind)
	assert.Equal(t, uint32(86400), res.Records[0].TTL, "included file's TTL tracking resets, falls back to the zone's SOA minimum")
}

func TestIncludeWithOverrideOrigin(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "other.zone")
	require.NoError(t, os.WriteFile(sub, []byte(`
host IN A 192.0.2.40
`), 0o644))

	main := filepath.Join(dir, "example.com.zone")
	require.NoError(t, os.WriteFile(main, []byte(`
$ORIGIN example.com.
@ 3600 IN SOA ns1.example.com. hostmaster.example.com. 1 3600 900 604800 86400
@ IN NS ns1.example.com.
ns1 IN A 192.0.2.1
$INCLUDE other.zone sub.example.com.
`), 0o644))

	z, _, err := LoadFile(main)
	require.NoError(t, err)

	res := z.Lookup("host.sub.example.com", uint16(dnswire.TypeA))
	require.Equal(t, KindAnswer, res.Kind)
}

func TestDiscoverZoneFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.zone"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.zone"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	files, err := DiscoverZoneFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join(dir, "a.zone"), files[0])
	assert.Equal(t, filepath.Join(dir, "b.zone"), files[1])
}
