package prompt

import (
	"strings"

	"github.com/sentra-ai/diagnosis-proxy/internal/utils"

	"github.com/valyala/bytebufferpool"
)

// NonReferral lists primary-care (competency 4A) diagnoses that must never be
// proposed as the primary referral code.
var NonReferral = []Diagnosis{
	{"I10", "Hipertensi Esensial (Primer)"},
	{"J00", "Nasofaringitis Akut (Common Cold)"},
	{"K30", "Dispepsia (Maag)"},
	{"R51", "Nyeri Kepala (Tension Headache)"},
	{"M79.1", "Myalgia"},
	{"A09", "Gastroenteritis (Diare tanpa dehidrasi)"},
	{"J06.9", "ISPA Akut"},
	{"L20", "Dermatitis Atopik (Ringan)"},
	{"E11.9", "Diabetes Melitus Tipe 2 (Tanpa Komplikasi)"},
	{"H10.1", "Konjungtivitis Akut"},
}

// Diagnosis is an ICD-10 code with its Indonesian label.
type Diagnosis struct {
	Code  string
	Label string
}

func (d Diagnosis) String() string { return d.Code + " - " + d.Label }

// NonReferralCodes returns just the codes of NonReferral.
func NonReferralCodes() []string {
	codes := make([]string, len(NonReferral))
	for i, d := range NonReferral {
		codes[i] = d.Code
	}
	return codes
}

// System is the referral CDSS instruction sent as the system message.
func System() string {
	return utils.BuildString(func(buf *bytebufferpool.ByteBuffer) {
		buf.WriteString("CDSS untuk rujukan BPJS. Output JSON valid, Bahasa Indonesia.\n\n")
		buf.WriteString("ATURAN:\n")
		buf.WriteString("- Diagnosa 4A (")
		buf.WriteString(strings.Join(NonReferralCodes(), ","))
		buf.WriteString(") JANGAN jadi kode utama\n")
		buf.WriteString("- Berikan 3 alternatif kompetensi 3B/3A yang LOLOS BPJS\n")
		buf.WriteString("- Sertakan tindakan medis & red flags\n\n")
		buf.WriteString("JSON: {code,description,category,urgency,triage_score,clinical_notes,")
		buf.WriteString("evidence:{red_flags,clinical_reasoning},")
		buf.WriteString("proposed_referrals:[{code,description,kompetensi,clinical_reasoning}x3]}")
	})
}

// User wraps the clinician's query with the task description.
func User(query string) string {
	return utils.BuildString(func(buf *bytebufferpool.ByteBuffer) {
		buf.WriteString("KASUS: \"")
		buf.WriteString(strings.ReplaceAll(query, "\"", "'"))
		buf.WriteString("\"\n\nBLACKLIST 4A: ")
		for i, d := range NonReferral {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(d.String())
		}
		buf.WriteString("\n\nTUGAS: Berikan 3 diagnosa alternatif kompetensi 3B/3A yang LOLOS BPJS.\n")
		buf.WriteString("- JANGAN pakai kode 4A\n")
		buf.WriteString("- Urutan: [Paling Aman] → [Moderat] → [Agresif Valid]\n")
		buf.WriteString("- Sertakan tindakan medis & red flags\n\n")
		buf.WriteString("OUTPUT: JSON valid, BAHASA INDONESIA. proposed_referrals WAJIB 3 opsi.")
	})
}
