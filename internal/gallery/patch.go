package gallery

// ImagePatch is a shallow update to an ImageRecord. Nil fields are left untouched.
type ImagePatch struct {
	Prompt          *string
	Tags            []string
	Favorite        *bool
	QualityScore    *float64
	QualityIssues   []string
	BlurScore       *float64
	BrightnessScore *float64
}

// Apply copies every set field of p onto r.
func (p ImagePatch) Apply(r *ImageRecord) {
	if p.Prompt != nil {
		r.Prompt = *p.Prompt
	}
	if p.Tags != nil {
		r.Tags = append([]string{}, p.Tags...)
	}
	if p.Favorite != nil {
		r.Favorite = *p.Favorite
	}
	if p.QualityScore != nil {
		score := *p.QualityScore
		r.QualityScore = &score
	}
	if p.QualityIssues != nil {
		r.QualityIssues = append([]string{}, p.QualityIssues...)
	}
	if p.BlurScore != nil {
		v := *p.BlurScore
		r.BlurScore = &v
	}
	if p.BrightnessScore != nil {
		v := *p.BrightnessScore
		r.BrightnessScore = &v
	}
}

// QualityPatch builds the patch that stores an analysis result.
func QualityPatch(q QualityUpdate) ImagePatch {
	score := q.Score
	blur := q.BlurScore
	brightness := q.BrightnessScore
	issues := q.Issues
	if issues == nil {
		issues = []string{}
	}
	return ImagePatch{
		QualityScore:    &score,
		QualityIssues:   issues,
		BlurScore:       &blur,
		BrightnessScore: &brightness,
	}
}

// PromptPatch is a shallow update to a PromptRecord. Nil fields are left untouched.
type PromptPatch struct {
	Title     *string
	Content   *string
	Category  *string
	Tags      []string
	Favorite  *bool
	UseCount  *int
	UpdatedAt *Timestamp
}

// Apply copies every set field of p onto r.
func (p PromptPatch) Apply(r *PromptRecord) {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Content != nil {
		r.Content = *p.Content
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.Tags != nil {
		r.Tags = append([]string{}, p.Tags...)
	}
	if p.Favorite != nil {
		r.Favorite = *p.Favorite
	}
	if p.UseCount != nil {
		r.UseCount = *p.UseCount
	}
	if p.UpdatedAt != nil {
		r.UpdatedAt = *p.UpdatedAt
	}
}

// IsEmpty reports whether the patch changes nothing the user edits.
func (p PromptPatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.Category == nil &&
		p.Tags == nil && p.Favorite == nil && p.UseCount == nil
}
