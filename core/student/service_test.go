package student_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendify/attendify/core"
	"github.com/attendify/attendify/core/student"
	"github.com/attendify/attendify/storage/database/inmem"
)

func newValidator() *validator.Validate {
	validate := validator.New()
	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	core.InitValidators(validate, translator)
	return validate
}

func TestNewStudent_Validate(t *testing.T) {
	validate := newValidator()

	tests := []struct {
		name       string
		ns         student.NewStudent
		wantFields []string
	}{
		{name: "valid", ns: student.NewStudent{Name: " Mina ", Phone: "01012345678", DateOfBirth: "2010-05-01"}},
		{name: "missing name", ns: student.NewStudent{Phone: "01012345678"}, wantFields: []string{"name"}},
		{name: "bad phone prefix", ns: student.NewStudent{Name: "Mina", Phone: "01312345678"}, wantFields: []string{"phone"}},
		{name: "short phone", ns: student.NewStudent{Name: "Mina", Phone: "0101234567"}, wantFields: []string{"phone"}},
		{name: "bad guardian phone", ns: student.NewStudent{Name: "Mina", Phone: "01512345678", FatherPhone: "123"}, wantFields: []string{"father_phone"}},
		{name: "bad birth date", ns: student.NewStudent{Name: "Mina", Phone: "01512345678", DateOfBirth: "2010-13-01"}, wantFields: []string{"date_of_birth"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ns.Validate(validate)
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}
			var vErrs validator.ValidationErrors
			require.ErrorAs(t, err, &vErrs)
			var fields []string
			for _, fe := range vErrs {
				fields = append(fields, fe.Field())
			}
			assert.ElementsMatch(t, tt.wantFields, fields)
		})
	}
}

func TestService(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	defer student.SetNowFunc(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})()

	ctx := context.Background()
	svc := student.NewService(inmemdb.NewStudentRepository(inmemdb.Open()))

	a, err := svc.Create(ctx, student.NewStudent{Name: "Beshoy", Phone: "01012345678"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, student.NewStudent{Name: "Abanoub", Phone: "01198765432", YearOfStudy: "3"})
	require.NoError(t, err)
	dup, err := svc.Create(ctx, student.NewStudent{Name: "Copy", Phone: "01012345678"})
	require.NoError(t, err)

	t.Run("query all by name", func(t *testing.T) {
		all, err := svc.QueryAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"Abanoub", "Beshoy", "Copy"}, []string{all[0].Name, all[1].Name, all[2].Name})
	})

	t.Run("search", func(t *testing.T) {
		got, err := svc.Query(ctx, student.QueryFilter{Search: "besh"}, nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, a.ID, got[0].ID)

		got, err = svc.Query(ctx, student.QueryFilter{YearOfStudy: "3"}, nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, b.ID, got[0].ID)
	})

	t.Run("find by scan key", func(t *testing.T) {
		got, err := svc.FindByScanKey(ctx, "01012345678")
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID, "first registered match wins")
		assert.NotEqual(t, dup.ID, got.ID)

		for _, raw := range []string{"", "0101234567", "01012345678 ", "+201012345678"} {
			_, err = svc.FindByScanKey(ctx, raw)
			assert.Equal(t, student.ErrNotFound, err, raw)
		}
	})

	t.Run("update", func(t *testing.T) {
		got, err := svc.Update(ctx, b, student.UpdateStudent{Name: "Abanoub M.", Phone: "01212345678"})
		require.NoError(t, err)
		assert.Equal(t, "01212345678", got.Phone)
		assert.Equal(t, "", got.YearOfStudy)

		found, err := svc.FindByScanKey(ctx, "01212345678")
		require.NoError(t, err)
		assert.Equal(t, b.ID, found.ID)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, dup.ID))
		_, err := svc.GetByID(ctx, dup.ID)
		assert.Equal(t, student.ErrNotFound, err)
		assert.Equal(t, student.ErrNotFound, svc.Delete(ctx, dup.ID))
	})

	t.Run("qr code", func(t *testing.T) {
		png, err := svc.QRCode(a)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
	})
}
