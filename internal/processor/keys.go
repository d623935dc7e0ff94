package processor

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rawblock/empi-engine/pkg/models"
)

// hashKeys fixes the field order hashed into uq_hash. Order matters: it is
// part of the hash's identity.
var hashKeys = []string{
	"address_1", "address_2", "city", "state", "postal_code",
	"organization", "given_name", "family_name", "name_day", "gender",
}

func hashField(d models.Demographic, key string) string {
	switch key {
	case "address_1":
		return d.Address1
	case "address_2":
		return d.Address2
	case "city":
		return d.City
	case "state":
		return d.State
	case "postal_code":
		return d.PostalCode
	case "organization":
		return d.Organization
	case "given_name":
		return d.GivenName
	case "family_name":
		return d.FamilyName
	case "name_day":
		if d.NameDay == nil {
			return ""
		}
		return d.NameDay.String()
	case "gender":
		return d.Gender
	default:
		return ""
	}
}

// applyHash computes uq_hash: SHA-256 over hashKeys, concatenated in order.
func applyHash(d models.Demographic) string {
	var sb strings.Builder
	for _, key := range hashKeys {
		sb.WriteString(hashField(d, key))
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// compositeKeyOf joins the source-system triple.
func compositeKeyOf(organization, system, systemID string) string {
	return organization + ":" + system + ":" + systemID
}

// compositeNameOf is the first five runes of given_name plus family_name,
// with spaces and hyphens stripped. If either name is blank, composite_name
// falls back to given_name alone.
func compositeNameOf(given, family string) string {
	if given == "" || family == "" {
		return given
	}
	name := sliceRunes(given, 5) + family
	name = strings.ReplaceAll(name, " ", "")
	name = strings.ReplaceAll(name, "-", "")
	return name
}

func sliceRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// compositeNameDayPostalOf is blank unless both a postal code and a
// name_day are present.
func compositeNameDayPostalOf(nameDay *time.Time, postalCode string) string {
	if postalCode == "" || nameDay == nil {
		return ""
	}
	return nameDay.Format("20060102") + ":" + postalCode
}

// applyRecordMetadata fills every derived field on d in place and stamps the
// touching user/timestamp. Called once per ingested demographic, before
// insert.
func applyRecordMetadata(d *models.Demographic, user string, ts time.Time) {
	d.UQHash = applyHash(*d)
	d.CompositeKey = compositeKeyOf(d.Organization, d.System, d.SystemID)
	d.CompositeName = compositeNameOf(d.GivenName, d.FamilyName)
	d.CompositeNameDayPostal = compositeNameDayPostalOf(d.NameDay, d.PostalCode)
	d.TouchedBy = user
	d.TouchedTS = ts
}

const nameDayFormat = "20060102"

// parseNameDay accepts either a "YYYYMMDD" string or a time.Time, per the
// ingest payload's two accepted shapes for name_day.
func parseNameDay(v interface{}) (*time.Time, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &val, nil
	case string:
		if val == "" {
			return nil, nil
		}
		t, err := time.Parse(nameDayFormat, val)
		if err != nil {
			return nil, err
		}
		return &t, nil
	default:
		return nil, errUnsupportedNameDay
	}
}
