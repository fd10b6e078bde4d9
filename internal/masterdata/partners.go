package masterdata

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// SearchPartners finds partners of kind ("" for any). An exact code, name or
// alias returns that single partner; otherwise every partner whose name or
// alias contains the query is returned, at most five.
func (m *Memory) SearchPartners(ctx context.Context, kind, query string) ([]Partner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := fold(query)
	if q == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []Partner
	for _, p := range m.partners {
		if kind == "" || p.Kind == kind {
			candidates = append(candidates, p)
		}
	}
	for _, p := range candidates {
		if fold(p.Code) == q || fold(p.Name) == q {
			return []Partner{p}, nil
		}
		for _, a := range p.Aliases {
			if fold(a) == q {
				return []Partner{p}, nil
			}
		}
	}
	var out []Partner
	for _, p := range candidates {
		if partnerContains(p, q) {
			out = append(out, p)
			if len(out) == 5 {
				break
			}
		}
	}
	return out, nil
}

func partnerContains(p Partner, q string) bool {
	if strings.Contains(fold(p.Name), q) {
		return true
	}
	for _, a := range p.Aliases {
		if strings.Contains(fold(a), q) {
			return true
		}
	}
	return false
}

// CreatePartner adds a partner, numbering it when Code is empty.
func (m *Memory) CreatePartner(ctx context.Context, p Partner) (Partner, error) {
	if err := ctx.Err(); err != nil {
		return Partner{}, err
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return Partner{}, fmt.Errorf("partner name is required")
	}
	if p.Kind != KindCustomer && p.Kind != KindVendor {
		return Partner{}, fmt.Errorf("partner kind must be %q or %q", KindCustomer, KindVendor)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.partners {
		if existing.Kind == p.Kind && fold(existing.Name) == fold(p.Name) {
			return Partner{}, fmt.Errorf("%s %q already exists as %s", p.Kind, p.Name, existing.Code)
		}
		if p.Code != "" && existing.Code == p.Code {
			return Partner{}, fmt.Errorf("partner code %s already exists", p.Code)
		}
	}
	if p.Code == "" {
		prefix := "C"
		if p.Kind == KindVendor {
			prefix = "V"
		}
		for {
			p.Code = fmt.Sprintf("%s%03d", prefix, m.next("partner-"+prefix))
			if !m.partnerCodeTaken(p.Code) {
				break
			}
		}
	}
	m.partners = append(m.partners, p)
	return p, nil
}

func (m *Memory) partnerCodeTaken(code string) bool {
	for _, p := range m.partners {
		if p.Code == code {
			return true
		}
	}
	return false
}

// SearchMaterials finds materials by exact code or name substring.
func (m *Memory) SearchMaterials(ctx context.Context, query string) ([]Material, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if mat, ok := m.materials[q]; ok {
		return []Material{mat}, nil
	}
	var out []Material
	lq := fold(q)
	for _, mat := range m.materials {
		if strings.Contains(fold(mat.Name), lq) || fold(mat.Code) == lq {
			out = append(out, mat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	if len(out) > 5 {
		out = out[:5]
	}
	return out, nil
}

var registrationPattern = regexp.MustCompile(`^T\d{13}$`)

// NormalizeRegistrationNo upper-cases a qualified invoice registration number
// and strips separators.
func NormalizeRegistrationNo(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if r == '-' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RegistrationCheck is the result of VerifyRegistration.
type RegistrationCheck struct {
	Normalized  string
	FormatValid bool
	Registered  bool
	Partner     *Partner
}

// VerifyRegistration checks the format of an invoice registration number
// and whether a known partner carries it.
func (m *Memory) VerifyRegistration(ctx context.Context, regNo string) (RegistrationCheck, error) {
	if err := ctx.Err(); err != nil {
		return RegistrationCheck{}, err
	}
	out := RegistrationCheck{Normalized: NormalizeRegistrationNo(regNo)}
	out.FormatValid = registrationPattern.MatchString(out.Normalized)
	if !out.FormatValid {
		return out, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.partners {
		if NormalizeRegistrationNo(p.RegistrationNo) == out.Normalized {
			p := p
			out.Registered = true
			out.Partner = &p
			break
		}
	}
	return out, nil
}
