package wizard

import (
	"encoding/json"
	"testing"
)

func TestNormalizeVerification_PatientSources(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []int64
	}{
		{
			name: "nested associated patients win",
			body: `{"sessionPacksDetails":{"associatedPatients":[{"id":1}]},"associatedPatients":[{"id":2}],"patients":[{"id":3}]}`,
			want: []int64{1},
		},
		{
			name: "top level associated patients",
			body: `{"sessionPacksDetails":{"associatedPatients":[]},"associatedPatients":[{"id":2},{"id":4}],"patients":[{"id":3}]}`,
			want: []int64{2, 4},
		},
		{
			name: "plain patients",
			body: `{"patients":[{"patientId":"3"}]}`,
			want: []int64{3},
		},
		{
			name: "nothing",
			body: `{"other":true}`,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NormalizeVerification(json.RawMessage(tt.body))
			if err != nil {
				t.Fatalf("NormalizeVerification() error = %v", err)
			}
			if len(v.Patients) != len(tt.want) {
				t.Fatalf("patients = %+v, want ids %v", v.Patients, tt.want)
			}
			for i, id := range tt.want {
				if v.Patients[i].ID != id {
					t.Errorf("patient %d id = %d, want %d", i, v.Patients[i].ID, id)
				}
			}
		})
	}
}

func TestNormalizeVerification_Packages(t *testing.T) {
	body := `{"sessionPacksDetails":{
		"activeSessionPackResponses":[
			{"sessionPackId":"40","packageName":"Derm x3","remainingSessions":"2","totalSessions":3,"doctorId":20,"allowedConsultationModes":["offline"]},
			{"id":41}
		],
		"allSessionPackResponses":[
			{"id":7,"name":"Physio x5","price":"2500.50","allowedConsultationModes":["ONLINE","OFFLINE"]},
			{"id":8,"allowedConsultationModes":[]}
		]
	}}`
	v, err := NormalizeVerification(json.RawMessage(body))
	if err != nil {
		t.Fatalf("NormalizeVerification() error = %v", err)
	}
	if len(v.SessionPacks) != 2 || len(v.Packages) != 2 {
		t.Fatalf("unexpected lists %+v", v)
	}

	pack := v.SessionPacks[0]
	if pack.ID != 40 || pack.Name != "Derm x3" || pack.RemainingSessions != 2 || pack.DoctorID != 20 {
		t.Errorf("pack = %+v", pack)
	}
	if len(pack.AllowedConsultationModes) != 1 || pack.AllowedConsultationModes[0] != "OFFLINE" {
		t.Errorf("pack modes = %v", pack.AllowedConsultationModes)
	}
	if v.SessionPacks[1].Name != unknownPackageName {
		t.Errorf("unnamed pack = %q", v.SessionPacks[1].Name)
	}

	both := v.Packages[0]
	if both.Price != 2500.50 || !both.ApplicableOnline || !both.ApplicableOffline {
		t.Errorf("package = %+v", both)
	}
	none := v.Packages[1]
	if none.Name != unknownPackageName || none.ApplicableOnline || none.ApplicableOffline {
		t.Errorf("package = %+v", none)
	}
}

func TestNormalizeVerification_EmptyAndMalformed(t *testing.T) {
	for _, body := range []string{``, `null`, `  `} {
		v, err := NormalizeVerification(json.RawMessage(body))
		if err != nil {
			t.Fatalf("NormalizeVerification(%q) error = %v", body, err)
		}
		if v.Patients == nil || v.SessionPacks == nil || v.Packages == nil {
			t.Fatalf("NormalizeVerification(%q) returned nil lists", body)
		}
	}

	for _, body := range []string{`[1,2]`, `{"patients":"many"}`, `{"patients":[{"id":"abc"}]}`} {
		v, err := NormalizeVerification(json.RawMessage(body))
		if err == nil {
			t.Errorf("NormalizeVerification(%s) expected error", body)
		}
		if len(v.Patients) != 0 || len(v.Packages) != 0 {
			t.Errorf("NormalizeVerification(%s) leaked partial data %+v", body, v)
		}
	}
}

func TestNormalizePatientFields(t *testing.T) {
	body := `{"patients":[{"id":5,"firstName":" Ravi ","lastName":"Kumar","gender":"male","bloodGroup":"b-","address":"7 Park Street","email":" ravi@example.com "}]}`
	v, err := NormalizeVerification(json.RawMessage(body))
	if err != nil {
		t.Fatalf("NormalizeVerification() error = %v", err)
	}
	p := v.Patients[0]
	if p.Name != "Ravi Kumar" || p.Gender != "MALE" || p.BloodGroup != "B-" || p.Address != "7 Park Street" || p.Email != "ravi@example.com" {
		t.Fatalf("patient = %+v", p)
	}
}
