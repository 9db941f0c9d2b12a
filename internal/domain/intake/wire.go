package intake

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
)

// WireField is one key/value pair of the multipart body.
type WireField struct {
	Key   string
	Value string
}

// WireFile is one binary part of the multipart body.
type WireFile struct {
	Key        string
	Attachment *Attachment
}

// Payload is the flat wire representation of an intake form.
type Payload struct {
	Fields []WireField
	Files  []WireFile
}

// Serialize flattens a validated form: dotted paths for nested fields,
// "[i]" suffixes for multi-select values in their original order, and the
// card images as file parts. Empty and inactive fields are omitted because
// the API treats an absent key differently from an empty one.
func Serialize(f *IntakeForm) *Payload {
	d := f.Draft()
	active := Resolve(d)
	p := &Payload{}
	for _, fd := range fields {
		if !active.Includes(fd.path) {
			continue
		}
		vals := fd.get(d)
		if !fd.multi {
			if len(vals) == 1 && vals[0] != "" {
				p.Fields = append(p.Fields, WireField{Key: fd.path, Value: vals[0]})
			}
			continue
		}
		i := 0
		for _, v := range vals {
			if v == "" {
				continue
			}
			p.Fields = append(p.Fields, WireField{Key: fmt.Sprintf("%s[%d]", fd.path, i), Value: v})
			i++
		}
	}

	if in, ok := f.Insurance.(Insured); ok {
		if in.CardFront != nil {
			p.Files = append(p.Files, WireFile{Key: KeyCardFront, Attachment: in.CardFront})
		}
		if in.CardBack != nil {
			p.Files = append(p.Files, WireFile{Key: KeyCardBack, Attachment: in.CardBack})
		}
	}
	return p
}

// Map returns the text fields keyed by wire key.
func (p *Payload) Map() map[string]string {
	m := make(map[string]string, len(p.Fields))
	for _, f := range p.Fields {
		m[f.Key] = f.Value
	}
	return m
}

// Values returns the text fields in the shape multipart.Form.Value uses.
func (p *Payload) Values() map[string][]string {
	m := make(map[string][]string, len(p.Fields))
	for _, f := range p.Fields {
		m[f.Key] = append(m[f.Key], f.Value)
	}
	return m
}

// Keys returns every text and file key, text keys first.
func (p *Payload) Keys() []string {
	out := make([]string, 0, len(p.Fields)+len(p.Files))
	for _, f := range p.Fields {
		out = append(out, f.Key)
	}
	for _, f := range p.Files {
		out = append(out, f.Key)
	}
	return out
}

// Has reports whether key is present in the payload.
func (p *Payload) Has(key string) bool {
	for _, k := range p.Keys() {
		if k == key {
			return true
		}
	}
	return false
}

// WriteMultipart writes the payload as multipart/form-data parts.
func (p *Payload) WriteMultipart(w *multipart.Writer) error {
	for _, f := range p.Fields {
		if err := w.WriteField(f.Key, f.Value); err != nil {
			return fmt.Errorf("write field %s: %w", f.Key, err)
		}
	}
	for _, f := range p.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Key, f.Attachment.FileName))
		h.Set("Content-Type", f.Attachment.ContentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return fmt.Errorf("create part %s: %w", f.Key, err)
		}
		if _, err := part.Write(f.Attachment.Data); err != nil {
			return fmt.Errorf("write part %s: %w", f.Key, err)
		}
	}
	return nil
}

// ParseFields rebuilds a draft from flat wire fields. Multi-select values may
// arrive as indexed keys ("x[0]", "x[1]") or as a repeated plain key.
func ParseFields(values map[string][]string) (*Draft, error) {
	type indexed struct {
		idx int
		val string
	}
	grouped := make(map[string][]indexed)
	d := &Draft{}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		base, idx, err := splitIndex(key)
		if err != nil {
			return nil, err
		}
		if _, ok := fieldsByPath[base]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, key)
		}
		if idx < 0 {
			if !IsMulti(base) {
				if err := d.Set(base, values[key]...); err != nil {
					return nil, err
				}
				continue
			}
			for i, v := range values[key] {
				grouped[base] = append(grouped[base], indexed{idx: -len(values[key]) + i, val: v})
			}
			continue
		}
		for _, v := range values[key] {
			grouped[base] = append(grouped[base], indexed{idx: idx, val: v})
		}
	}

	for base, items := range grouped {
		sort.SliceStable(items, func(i, j int) bool { return items[i].idx < items[j].idx })
		vals := make([]string, len(items))
		for i, it := range items {
			vals[i] = it.val
		}
		if err := d.Set(base, vals...); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func splitIndex(key string) (string, int, error) {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return key, -1, nil
	}
	if !strings.HasSuffix(key, "]") {
		return "", 0, fmt.Errorf("malformed key %q", key)
	}
	idx, err := strconv.Atoi(key[open+1 : len(key)-1])
	if err != nil || idx < 0 {
		return "", 0, fmt.Errorf("malformed index in key %q", key)
	}
	return key[:open], idx, nil
}

// DecodeDetails decodes the details endpoint body into an editable draft.
// Unknown members such as server-assigned identifiers are ignored.
func DecodeDetails(data []byte) (*Draft, error) {
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode intake details: %w", err)
	}
	return &d, nil
}
