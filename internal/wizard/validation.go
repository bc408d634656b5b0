package wizard

import (
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var countryCodePattern = regexp.MustCompile(`^\+\d{1,4}$`)

// bloodGroupEnums maps the accepted blood group spellings to API enum values.
var bloodGroupEnums = map[string]string{
	"A+":  "A_POSITIVE",
	"A-":  "A_NEGATIVE",
	"B+":  "B_POSITIVE",
	"B-":  "B_NEGATIVE",
	"AB+": "AB_POSITIVE",
	"AB-": "AB_NEGATIVE",
	"O+":  "O_POSITIVE",
	"O-":  "O_NEGATIVE",
}

// BloodGroups lists the selectable blood groups in display order.
var BloodGroups = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

// Genders lists the accepted gender values.
var Genders = []string{"MALE", "FEMALE", "OTHER"}

const otpLength = 6

// ValidateCountryCode checks a dialling prefix such as "+91".
func ValidateCountryCode(code string) error {
	if !countryCodePattern.MatchString(strings.TrimSpace(code)) {
		return invalid("countryCode", "Please enter a valid country code (for example +91).")
	}
	return nil
}

// NormalizePhone strips everything except digits.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidatePhone checks that phone carries 7 to 15 digits.
func ValidatePhone(phone string) error {
	n := len(NormalizePhone(phone))
	if n < 7 || n > 15 {
		return invalid("patientPhone", "Please enter a valid phone number.")
	}
	return nil
}

// ValidateOTPCode checks the passcode length.
func ValidateOTPCode(code string) error {
	if utf8.RuneCountInString(strings.TrimSpace(code)) != otpLength {
		return invalid("otpCode", "Please enter the 6-digit code sent to your phone.")
	}
	return nil
}

// BloodGroupEnum maps a blood group to its API value. Empty input maps to "".
func BloodGroupEnum(group string) (string, error) {
	group = strings.ToUpper(strings.TrimSpace(group))
	if group == "" {
		return "", nil
	}
	enum, ok := bloodGroupEnums[group]
	if !ok {
		return "", invalid("bloodGroup", "Please select a valid blood group.")
	}
	return enum, nil
}

// normalizeGender upper-cases known genders and returns "" for anything else.
func normalizeGender(g string) string {
	g = strings.ToUpper(strings.TrimSpace(g))
	for _, known := range Genders {
		if g == known {
			return g
		}
	}
	return ""
}

func parseAge(age string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(age))
	if err != nil || n < 0 || n > 150 {
		return 0, invalid("patientAge", "Please enter a valid age.")
	}
	return n, nil
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, "@")
}

type requiredField struct {
	label string
	value string
}

func patientFormRequired(p PatientForm) []requiredField {
	return []requiredField{
		{"name", p.Name},
		{"age", p.Age},
		{"gender", p.Gender},
		{"email", p.Email},
		{"address", p.Address},
		{"city", p.City},
		{"state", p.State},
		{"country", p.Country},
		{"zipcode", p.Zipcode},
	}
}

func missingLabels(fields []requiredField) []string {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.label)
		}
	}
	return missing
}

// validatePatientForm is the guard for leaving the patient details step.
func validatePatientForm(p PatientForm) error {
	if missing := missingLabels(patientFormRequired(p)); len(missing) > 0 {
		return invalid("patient", "Please fill in: %s.", strings.Join(missing, ", "))
	}
	return validatePatientValues(p)
}

// validatePatientValues checks the format of fields that are present.
func validatePatientValues(p PatientForm) error {
	if strings.TrimSpace(p.Age) != "" {
		if _, err := parseAge(p.Age); err != nil {
			return err
		}
	}
	if g := strings.TrimSpace(p.Gender); g != "" && normalizeGender(g) == "" {
		return invalid("patientGender", "Please select a valid gender.")
	}
	if e := strings.TrimSpace(p.Email); e != "" && !validEmail(e) {
		return invalid("patientEmail", "Please enter a valid email address.")
	}
	if _, err := BloodGroupEnum(p.BloodGroup); err != nil {
		return err
	}
	return nil
}
