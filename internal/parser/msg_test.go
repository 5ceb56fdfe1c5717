package parser

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"github.com/felo/mail-extractor/internal/model"
)

// testBag wraps propertyBag with setters used to build compound fixtures
type testBag struct {
	*propertyBag
}

func newTestBag() testBag {
	return testBag{newPropertyBag()}
}

func (b testBag) setText(id uint16, s string) testBag {
	data, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s + "\x00"))
	if err != nil {
		panic(err)
	}
	b.streams[propTag(id, ptUnicode)] = data
	return b
}

func (b testBag) setString8(id uint16, raw []byte) testBag {
	b.streams[propTag(id, ptString8)] = raw
	return b
}

func (b testBag) setBinary(id uint16, data []byte) testBag {
	b.streams[propTag(id, ptBinary)] = data
	return b
}

func (b testBag) setLong(id uint16, v int32) testBag {
	value := make([]byte, 8)
	binary.LittleEndian.PutUint32(value, uint32(v))
	b.fixed[propTag(id, ptLong)] = value
	return b
}

func (b testBag) setTime(id uint16, t time.Time) testBag {
	value := make([]byte, 8)
	binary.LittleEndian.PutUint64(value, uint64(t.UnixNano()/100)+filetimeUnixOffset)
	b.fixed[propTag(id, ptSysTime)] = value
	return b
}

func newTestDecoder() *MSGDecoder {
	return NewMSGDecoder(zerolog.Nop())
}

func TestMSG_HeaderFieldsFromProperties(t *testing.T) {
	sent := time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)
	c := &compound{
		root: newTestBag().
			setText(propSubject, "Quarterly report").
			setText(propSenderName, "Alice Example").
			setText(propSenderSMTPAddress, "alice@example.com").
			setText(propBody, "See attached.").
			setTime(propClientSubmitTime, sent).propertyBag,
		recipients: []*propertyBag{
			newTestBag().setText(propDisplayName, "Bob").setText(propSMTPAddress, "bob@example.com").setLong(propRecipientType, recipientTo).propertyBag,
			newTestBag().setText(propDisplayName, "carol@example.com").setText(propEmailAddress, "carol@example.com").setLong(propRecipientType, recipientTo).propertyBag,
			newTestBag().setText(propDisplayName, "Dave").setText(propSMTPAddress, "dave@example.com").setLong(propRecipientType, recipientCc).propertyBag,
			newTestBag().setText(propDisplayName, "Erin").setLong(propRecipientType, recipientBcc).propertyBag,
		},
	}

	decoded := newTestDecoder().fromCompound(c)
	msg := decoded.Message

	assert.Equal(t, "Quarterly report", msg.Subject)
	assert.Equal(t, "Alice Example <alice@example.com>", msg.Sender)
	assert.Equal(t, "Bob <bob@example.com>; carol@example.com", msg.To)
	assert.Equal(t, "Dave <dave@example.com>", msg.CC)
	assert.Equal(t, "Erin", msg.BCC)
	assert.Equal(t, "Mon, 01 Jan 2024 10:00:00 +0000", msg.Date)
	assert.Equal(t, "See attached.", msg.Body)
	assert.Empty(t, decoded.Attachments)
}

func TestMSG_TransportHeadersTakePrecedence(t *testing.T) {
	headers := "Received: from mx.example.com\r\n" +
		"From: \"Alice\" <alice@example.com>\r\n" +
		"To: bob@example.com\r\n" +
		"Date: Tue, 2 Jan 2024 08:15:00 -0500\r\n"

	c := &compound{
		root: newTestBag().
			setText(propTransportHeaders, headers).
			setText(propSenderName, "Someone Else").
			setText(propDisplayTo, "Display To").
			setTime(propClientSubmitTime, time.Now()).propertyBag,
	}

	msg := newTestDecoder().fromCompound(c).Message
	assert.Equal(t, "\"Alice\" <alice@example.com>", msg.Sender)
	assert.Equal(t, "bob@example.com", msg.To)
	assert.Equal(t, "Tue, 2 Jan 2024 08:15:00 -0500", msg.Date)
}

func TestMSG_DisplayFieldsFallback(t *testing.T) {
	c := &compound{
		root: newTestBag().
			setString8(propSubject, []byte("Caf\xe9 menu")).
			setText(propDisplayTo, "Bob; Carol").
			setText(propDisplayCc, "Dave").
			setTime(propDeliveryTime, time.Date(2023, time.June, 5, 12, 0, 0, 0, time.UTC)).propertyBag,
	}

	msg := newTestDecoder().fromCompound(c).Message
	assert.Equal(t, "Café menu", msg.Subject)
	assert.Equal(t, "Bob; Carol", msg.To)
	assert.Equal(t, "Dave", msg.CC)
	assert.Equal(t, "", msg.BCC)
	assert.Equal(t, "Mon, 05 Jun 2023 12:00:00 +0000", msg.Date)
}

func TestMSG_HTMLBodyFallback(t *testing.T) {
	c := &compound{
		root: newTestBag().setBinary(propBodyHTML, []byte("<p>Hello <b>world</b></p>")).propertyBag,
	}

	msg := newTestDecoder().fromCompound(c).Message
	assert.Equal(t, "Hello world", msg.Body)
}

func TestMSG_Attachments(t *testing.T) {
	c := &compound{
		root: newTestBag().setText(propSubject, "With files").propertyBag,
		attachments: []*propertyBag{
			newTestBag().setText(propAttachLongFilename, "invoice 2024.pdf").setText(propAttachFilename, "INVOIC~1.PDF").setBinary(propAttachDataObj, []byte("%PDF")).propertyBag,
			// No display name: excluded
			newTestBag().setBinary(propAttachDataObj, []byte("hidden")).propertyBag,
			// Short name only
			newTestBag().setText(propAttachFilename, "logo.png").setBinary(propAttachDataObj, []byte{0x89, 'P', 'N', 'G'}).propertyBag,
			// Embedded message: no binary payload
			newTestBag().setText(propAttachLongFilename, "forwarded.msg").setLong(propAttachMethod, 5).propertyBag,
		},
	}

	decoded := newTestDecoder().fromCompound(c)
	require.Len(t, decoded.Attachments, 2)
	assert.Equal(t, "invoice 2024.pdf", decoded.Attachments[0].Name)
	assert.Equal(t, []byte("%PDF"), decoded.Attachments[0].Data)
	assert.Equal(t, "logo.png", decoded.Attachments[1].Name)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, decoded.Attachments[1].Data)
}

// TestMSGDecoder_OutlookFile decodes a message saved by Outlook
func TestMSGDecoder_OutlookFile(t *testing.T) {
	decoded, err := newTestDecoder().Decode(filepath.Join("testdata", "test.msg"))
	require.NoError(t, err)

	msg := decoded.Message
	assert.Equal(t, "test", msg.Subject)
	assert.Equal(t, `"Lehane, Richard" <Richard.Lehane@records.nsw.gov.au>`, msg.Sender)
	assert.Equal(t, `"Lehane, Richard" <Richard.Lehane@records.nsw.gov.au>`, msg.To)
	assert.Empty(t, msg.CC)
	assert.Empty(t, msg.BCC)
	assert.Equal(t, "Mon, 18 Nov 2013 08:26:09 +1100", msg.Date)
	assert.True(t, strings.HasPrefix(msg.Body, "Test\r\n"))
	assert.Contains(t, msg.Body, "State Records Authority of New South Wales")

	require.Len(t, decoded.Attachments, 2)
	assert.Equal(t, "test.doc", decoded.Attachments[0].Name)
	assert.Len(t, decoded.Attachments[0].Data, 12288)
	assert.Equal(t, []byte{0xD0, 0xCF, 0x11, 0xE0}, decoded.Attachments[0].Data[:4])
	assert.Equal(t, "image001.gif", decoded.Attachments[1].Name)
	assert.Len(t, decoded.Attachments[1].Data, 2864)
	assert.Equal(t, []byte("GIF89a"), decoded.Attachments[1].Data[:6])
}

// TestReadCompound_StorageLayout tests grouping of recipient and attachment
// storages read from a real file
func TestReadCompound_StorageLayout(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "test.msg"))
	require.NoError(t, err)

	c, err := readCompound(bytes.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "test", c.root.Text(propSubject))
	assert.NotEmpty(t, c.root.rawPropertyStream)

	require.Len(t, c.recipients, 1)
	assert.Equal(t, "Lehane, Richard", c.recipients[0].Text(propDisplayName))
	assert.Equal(t, "Richard.Lehane@records.nsw.gov.au", c.recipients[0].Text(propSMTPAddress))
	kind, ok := c.recipients[0].Long(propRecipientType)
	require.True(t, ok, "recipient type comes from the fixed property stream")
	assert.Equal(t, int32(recipientTo), kind)

	require.Len(t, c.attachments, 2)
	assert.Equal(t, "test.doc", c.attachments[0].Text(propAttachLongFilename))
	assert.Equal(t, "image001.gif", c.attachments[1].Text(propAttachLongFilename))
}

func TestPropertyBag_ParseFixed(t *testing.T) {
	raw := make([]byte, childPropsHeader+2*propEntrySize)

	entry := raw[childPropsHeader:]
	binary.LittleEndian.PutUint32(entry[0:], propTag(propRecipientType, ptLong))
	binary.LittleEndian.PutUint32(entry[8:], recipientCc)

	entry = raw[childPropsHeader+propEntrySize:]
	binary.LittleEndian.PutUint32(entry[0:], propTag(propAttachMethod, ptLong))
	binary.LittleEndian.PutUint32(entry[8:], 1)

	bag := newPropertyBag()
	bag.rawPropertyStream = raw
	bag.parseFixed(childPropsHeader)

	kind, ok := bag.Long(propRecipientType)
	require.True(t, ok)
	assert.Equal(t, int32(recipientCc), kind)

	method, ok := bag.Long(propAttachMethod)
	require.True(t, ok)
	assert.Equal(t, int32(1), method)

	_, ok = bag.Time(propClientSubmitTime)
	assert.False(t, ok)
}

func TestStreamTag(t *testing.T) {
	tag, ok := streamTag("__substg1.0_0037001F")
	require.True(t, ok)
	assert.Equal(t, propTag(propSubject, ptUnicode), tag)

	_, ok = streamTag("__substg1.0_3701000D")
	assert.False(t, ok, "object entries are storages, not streams")

	_, ok = streamTag("__substg1.0_XYZ")
	assert.False(t, ok)

	_, ok = streamTag("__nameid_version1.0")
	assert.False(t, ok)
}

func TestMSG_ParseRejectsNonCompoundData(t *testing.T) {
	_, err := newTestDecoder().ParseMSG([]byte("From: not an outlook file\n\nhello"))
	assert.Error(t, err)
}

func TestMSGDecoder_Errors(t *testing.T) {
	_, err := newTestDecoder().Decode(filepath.Join(t.TempDir(), "missing.msg"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAccess))

	path := writeFixture(t, "corrupt.msg", strings.Repeat("\x00garbage", 64))
	_, err = newTestDecoder().Decode(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDecode))
}

// Equivalent .eml and .msg content yields the same record
func TestFormatSymmetry(t *testing.T) {
	eml := `From: Alice <alice@example.com>
To: Bob <bob@example.com>
Cc: Carol <carol@example.com>
Bcc: Dave <dave@example.com>
Subject: Symmetry
Date: Mon, 01 Jan 2024 10:00:00 +0000
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="S"

--S
Content-Type: text/plain; charset=utf-8

Hello there
--S
Content-Type: text/plain
Content-Disposition: attachment; filename="report.txt"

report data
--S--
`
	fromEML, err := ParseEML(strings.NewReader(eml))
	require.NoError(t, err)

	c := &compound{
		root: newTestBag().
			setText(propSubject, "Symmetry").
			setText(propSenderName, "Alice").
			setText(propSenderSMTPAddress, "alice@example.com").
			setText(propBody, "Hello there").
			setTime(propClientSubmitTime, time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)).propertyBag,
		recipients: []*propertyBag{
			newTestBag().setText(propDisplayName, "Bob").setText(propSMTPAddress, "bob@example.com").setLong(propRecipientType, recipientTo).propertyBag,
			newTestBag().setText(propDisplayName, "Carol").setText(propSMTPAddress, "carol@example.com").setLong(propRecipientType, recipientCc).propertyBag,
			newTestBag().setText(propDisplayName, "Dave").setText(propSMTPAddress, "dave@example.com").setLong(propRecipientType, recipientBcc).propertyBag,
		},
		attachments: []*propertyBag{
			newTestBag().setText(propAttachLongFilename, "report.txt").setBinary(propAttachDataObj, []byte("report data")).propertyBag,
		},
	}
	fromMSG := newTestDecoder().fromCompound(c)

	assert.Equal(t, fromEML.Message, fromMSG.Message)
	assert.Equal(t, fromEML.Attachments, fromMSG.Attachments)
}
