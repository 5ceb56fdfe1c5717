package parser

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/richardlehane/mscfb"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/felo/mail-extractor/internal/model"
)

// Outlook .msg files are OLE compound files. Every MAPI property with a
// variable-length value lives in a stream named __substg1.0_IIIITTTT (property
// id, property type); fixed-length values are packed into the storage's
// __properties_version1.0 stream.
const (
	substgPrefix     = "__substg1.0_"
	propertiesStream = "__properties_version1.0"
	recipPrefix      = "__recip_version1.0_"
	attachPrefix     = "__attach_version1.0_"

	// Header sizes of __properties_version1.0 before the 16-byte entries
	topLevelPropsHeader = 32
	childPropsHeader    = 8
	propEntrySize       = 16
)

// MAPI property types
const (
	ptLong    = 0x0003
	ptString8 = 0x001E
	ptUnicode = 0x001F
	ptSysTime = 0x0040
	ptBinary  = 0x0102
)

// MAPI property ids
const (
	propSubject            = 0x0037 // PR_SUBJECT
	propClientSubmitTime   = 0x0039 // PR_CLIENT_SUBMIT_TIME
	propTransportHeaders   = 0x007D // PR_TRANSPORT_MESSAGE_HEADERS
	propSenderName         = 0x0C1A // PR_SENDER_NAME
	propSenderEmail        = 0x0C1F // PR_SENDER_EMAIL_ADDRESS
	propRecipientType      = 0x0C15 // PR_RECIPIENT_TYPE
	propDisplayBcc         = 0x0E02 // PR_DISPLAY_BCC
	propDisplayCc          = 0x0E03 // PR_DISPLAY_CC
	propDisplayTo          = 0x0E04 // PR_DISPLAY_TO
	propDeliveryTime       = 0x0E06 // PR_MESSAGE_DELIVERY_TIME
	propBody               = 0x1000 // PR_BODY
	propBodyHTML           = 0x1013 // PR_BODY_HTML
	propDisplayName        = 0x3001 // PR_DISPLAY_NAME
	propEmailAddress       = 0x3003 // PR_EMAIL_ADDRESS
	propAttachDataObj      = 0x3701 // PR_ATTACH_DATA_OBJ
	propAttachFilename     = 0x3704 // PR_ATTACH_FILENAME
	propAttachMethod       = 0x3705 // PR_ATTACH_METHOD
	propAttachLongFilename = 0x3707 // PR_ATTACH_LONG_FILENAME
	propSMTPAddress        = 0x39FE // PR_SMTP_ADDRESS
	propSenderSMTPAddress  = 0x5D01 // PR_SENDER_SMTP_ADDRESS
)

// Recipient types from PR_RECIPIENT_TYPE
const (
	recipientTo  = 1
	recipientCc  = 2
	recipientBcc = 3
)

// The Unix epoch expressed as a FILETIME (100ns ticks since 1601)
const filetimeUnixOffset = 116444736000000000

var errNoProperties = errors.New("no MAPI properties found")

// MSGDecoder decodes Outlook .msg files
type MSGDecoder struct {
	logger zerolog.Logger
}

// NewMSGDecoder creates a .msg decoder
func NewMSGDecoder(logger zerolog.Logger) *MSGDecoder {
	return &MSGDecoder{logger: logger}
}

// Decode reads the whole compound file and extracts the message
func (d *MSGDecoder) Decode(path string) (*Decoded, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %w", model.ErrAccess, path, err)
	}

	decoded, err := d.ParseMSG(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", model.ErrDecode, path, err)
	}
	return decoded, nil
}

// ParseMSG parses the bytes of a .msg file
func (d *MSGDecoder) ParseMSG(raw []byte) (*Decoded, error) {
	c, err := readCompound(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return d.fromCompound(c), nil
}

// propertyBag holds the properties of one storage: the root message, a
// recipient or an attachment.
type propertyBag struct {
	streams           map[uint32][]byte
	fixed             map[uint32][]byte
	rawPropertyStream []byte
}

func newPropertyBag() *propertyBag {
	return &propertyBag{
		streams: make(map[uint32][]byte),
		fixed:   make(map[uint32][]byte),
	}
}

// compound is the part of a .msg file's storage tree the decoder needs
type compound struct {
	root        *propertyBag
	recipients  []*propertyBag
	attachments []*propertyBag
}

func readCompound(r io.ReaderAt) (*compound, error) {
	doc, err := mscfb.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open compound file: %w", err)
	}

	root := newPropertyBag()
	recipients := make(map[string]*propertyBag)
	attachments := make(map[string]*propertyBag)
	found := false

	for {
		entry, err := doc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read compound entry: %w", err)
		}

		path := entry.Path
		if len(path) > 0 && path[0] == "Root Entry" {
			path = path[1:]
		}

		var bag *propertyBag
		switch {
		case len(path) == 0:
			bag = root
		case len(path) == 1 && strings.HasPrefix(path[0], recipPrefix):
			bag = childBag(recipients, path[0])
		case len(path) == 1 && strings.HasPrefix(path[0], attachPrefix):
			bag = childBag(attachments, path[0])
		default:
			// Nested storages belong to embedded messages
			continue
		}

		isProps := entry.Name == propertiesStream
		tag, isStream := streamTag(entry.Name)
		if !isProps && !isStream {
			continue
		}

		data := make([]byte, entry.Size)
		if _, err := io.ReadFull(entry, data); err != nil {
			return nil, fmt.Errorf("failed to read stream %s: %w", entry.Name, err)
		}
		found = true

		if isProps {
			bag.rawPropertyStream = data
		} else {
			bag.streams[tag] = data
		}
	}

	if !found {
		return nil, errNoProperties
	}

	root.parseFixed(topLevelPropsHeader)
	c := &compound{root: root}
	for _, name := range sortedKeys(recipients) {
		recipients[name].parseFixed(childPropsHeader)
		c.recipients = append(c.recipients, recipients[name])
	}
	for _, name := range sortedKeys(attachments) {
		attachments[name].parseFixed(childPropsHeader)
		c.attachments = append(c.attachments, attachments[name])
	}
	return c, nil
}

func childBag(bags map[string]*propertyBag, name string) *propertyBag {
	bag, ok := bags[name]
	if !ok {
		bag = newPropertyBag()
		bags[name] = bag
	}
	return bag
}

func sortedKeys(m map[string]*propertyBag) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// streamTag extracts the property tag from a __substg1.0_ stream name.
// Object-typed entries (embedded storages) are not streams.
func streamTag(name string) (uint32, bool) {
	if !strings.HasPrefix(name, substgPrefix) {
		return 0, false
	}
	hex := strings.TrimPrefix(name, substgPrefix)
	if len(hex) != 8 {
		return 0, false
	}
	tag, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, false
	}
	switch uint16(tag) {
	case ptString8, ptUnicode, ptBinary:
		return uint32(tag), true
	default:
		return 0, false
	}
}

func (b *propertyBag) parseFixed(headerLen int) {
	data := b.rawPropertyStream
	for off := headerLen; off+propEntrySize <= len(data); off += propEntrySize {
		tag := binary.LittleEndian.Uint32(data[off:])
		b.fixed[tag] = data[off+8 : off+propEntrySize]
	}
}

func propTag(id, typ uint16) uint32 {
	return uint32(id)<<16 | uint32(typ)
}

// Text returns a string property, decoding PT_UNICODE as UTF-16LE and
// PT_STRING8 as windows-1252.
func (b *propertyBag) Text(id uint16) string {
	if data, ok := b.streams[propTag(id, ptUnicode)]; ok {
		out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(data)
		if err == nil {
			return strings.TrimRight(string(out), "\x00")
		}
	}
	if data, ok := b.streams[propTag(id, ptString8)]; ok {
		out, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err == nil {
			return strings.TrimRight(string(out), "\x00")
		}
		return strings.TrimRight(string(data), "\x00")
	}
	return ""
}

// Binary returns a PT_BINARY property
func (b *propertyBag) Binary(id uint16) ([]byte, bool) {
	data, ok := b.streams[propTag(id, ptBinary)]
	return data, ok
}

// Long returns a PT_LONG property from the fixed property stream
func (b *propertyBag) Long(id uint16) (int32, bool) {
	v, ok := b.fixed[propTag(id, ptLong)]
	if !ok || len(v) < 4 {
		return 0, false
	}
	return int32(binary.LittleEndian.Uint32(v)), true
}

// Time returns a PT_SYSTIME property from the fixed property stream
func (b *propertyBag) Time(id uint16) (time.Time, bool) {
	v, ok := b.fixed[propTag(id, ptSysTime)]
	if !ok || len(v) < 8 {
		return time.Time{}, false
	}
	ft := binary.LittleEndian.Uint64(v)
	if ft < filetimeUnixOffset {
		return time.Time{}, false
	}
	ticks := int64(ft - filetimeUnixOffset)
	return time.Unix(ticks/1e7, (ticks%1e7)*100).UTC(), true
}

func (d *MSGDecoder) fromCompound(c *compound) *Decoded {
	root := c.root
	msg := model.NewMessage()
	headers := transportHeaders(root.Text(propTransportHeaders))

	msg.Subject = root.Text(propSubject)

	msg.Sender = headerText(headers, "From")
	if msg.Sender == "" {
		addr := root.Text(propSenderSMTPAddress)
		if addr == "" {
			addr = root.Text(propSenderEmail)
		}
		msg.Sender = formatAddress(root.Text(propSenderName), addr)
	}

	to, cc, bcc := recipientLists(c.recipients)
	msg.To = firstNonEmpty(headerText(headers, "To"), to, root.Text(propDisplayTo))
	msg.CC = firstNonEmpty(headerText(headers, "Cc"), cc, root.Text(propDisplayCc))
	msg.BCC = firstNonEmpty(headerText(headers, "Bcc"), bcc, root.Text(propDisplayBcc))

	msg.Date = strings.TrimSpace(headers.Get("Date"))
	if msg.Date == "" {
		if t, ok := root.Time(propClientSubmitTime); ok {
			msg.Date = t.Format(time.RFC1123Z)
		} else if t, ok := root.Time(propDeliveryTime); ok {
			msg.Date = t.Format(time.RFC1123Z)
		}
	}

	msg.Body = root.Text(propBody)
	if msg.Body == "" {
		html := root.Text(propBodyHTML)
		if data, ok := root.Binary(propBodyHTML); ok && html == "" {
			html = string(data)
		}
		msg.Body = RenderHTML(html)
	}

	decoded := &Decoded{Message: msg}
	for i, att := range c.attachments {
		name := att.Text(propAttachLongFilename)
		if name == "" {
			name = att.Text(propAttachFilename)
		}
		if name == "" {
			continue
		}

		data, ok := att.Binary(propAttachDataObj)
		if !ok {
			method, _ := att.Long(propAttachMethod)
			d.logger.Warn().
				Str("attachment", name).
				Int("index", i).
				Int32("method", method).
				Msg("Skipping attachment without binary payload")
			continue
		}
		decoded.Attachments = append(decoded.Attachments, model.Attachment{
			Name: name,
			Data: data,
		})
	}

	return decoded
}

// transportHeaders parses PR_TRANSPORT_MESSAGE_HEADERS. Broken header
// blocks yield an empty header rather than failing the message.
func transportHeaders(raw string) mail.Header {
	if strings.TrimSpace(raw) == "" {
		return mail.Header{}
	}
	raw = strings.TrimRight(raw, "\r\n") + "\r\n\r\n"
	h, err := textproto.ReadHeader(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		return mail.Header{}
	}
	return mail.Header{Header: message.Header{Header: h}}
}

func recipientLists(recipients []*propertyBag) (to, cc, bcc string) {
	var toList, ccList, bccList []string
	for _, r := range recipients {
		addr := r.Text(propSMTPAddress)
		if addr == "" {
			addr = r.Text(propEmailAddress)
		}
		entry := formatAddress(r.Text(propDisplayName), addr)
		if entry == "" {
			continue
		}

		kind, _ := r.Long(propRecipientType)
		switch kind {
		case recipientCc:
			ccList = append(ccList, entry)
		case recipientBcc:
			bccList = append(bccList, entry)
		default:
			toList = append(toList, entry)
		}
	}
	return strings.Join(toList, "; "), strings.Join(ccList, "; "), strings.Join(bccList, "; ")
}

func formatAddress(name, addr string) string {
	name = strings.TrimSpace(name)
	addr = strings.TrimSpace(addr)
	switch {
	case name != "" && addr != "" && name != addr:
		return fmt.Sprintf("%s <%s>", name, addr)
	case addr != "":
		return addr
	default:
		return name
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
