// Package prompt owns the nutrition-analysis instruction and the reply schema.
// Changing what the provider is asked, or how it must answer, happens here only.
package prompt

import (
	"fmt"
	"strconv"

	"github.com/franckalain/doctorfood/internal/models"
)

const template = `
أنت خبير تغذية وطبيب محترف. قم بتحليل صورة الطعام المرفقة.
المستخدم هو: %s، العمر: %s سنة، الوزن: %s كجم.

قم بتحليل الصورة بدقة وقدم المعلومات التالية باللغة العربية:
1. اسم الطعام أو الوجبة.
2. الوزن التقديري للوجبة بالجرام.
3. السعرات الحرارية التقديرية.
4. نبذة عن التأثير الصحي لهذه الوجبة على المستخدم بناءً على بياناته.
5. هل الوجبة صحية أم لا (نعم/لا).
6. تقييم الوجبة من 10 (رقم).
7. قائمة بالبدائل الصحية إذا كانت غير صحية، أو إضافات صحية إذا كانت صحية.
8. تحليل شامل ومفصل للوجبة ومدى ملاءمتها للمستخدم.
`

// Schema is the reply every provider must produce. All fields are required.
var Schema = models.ResponseSchema{
	Fields: []models.SchemaField{
		{Name: "foodName", Type: models.FieldString, Description: "اسم الطعام أو الوجبة"},
		{Name: "estimatedWeight", Type: models.FieldString, Description: "الوزن التقديري مع الوحدة (مثال: 250 جرام)"},
		{Name: "calories", Type: models.FieldString, Description: "السعرات الحرارية التقديرية (مثال: 450 سعرة)"},
		{Name: "healthiness", Type: models.FieldString, Description: "نبذة قصيرة عن التأثير الصحي"},
		{Name: "isHealthy", Type: models.FieldBoolean, Description: "هل الوجبة صحية بشكل عام"},
		{Name: "rating", Type: models.FieldNumber, Description: "تقييم الوجبة من 10"},
		{Name: "healthyAlternatives", Type: models.FieldArray, ItemType: models.FieldString, Description: "بدائل صحية أو إضافات مقترحة"},
		{Name: "analysis", Type: models.FieldString, Description: "تحليل شامل ومفصل"},
	},
}

// Build assembles the request for one photo. It has no side effects.
func Build(image models.ImageBlob, profile models.UserProfile) models.AnalysisRequest {
	return models.AnalysisRequest{
		Image:   image,
		Profile: profile,
		Prompt:  Text(profile),
		Schema:  Schema,
	}
}

// Text renders the instruction for a profile.
func Text(profile models.UserProfile) string {
	return fmt.Sprintf(template, genderLabel(profile.Gender), strconv.Itoa(profile.Age), models.FormatWeight(profile.Weight))
}

func genderLabel(g models.Gender) string {
	if g == models.GenderMale {
		return "ذكر"
	}
	return "أنثى"
}
