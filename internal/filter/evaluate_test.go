package filter

import (
	"errors"
	"testing"

	"github.com/dhawalhost/scimd/internal/resource"
	"github.com/dhawalhost/scimd/internal/schema"
)

func testUser(t *testing.T) *resource.Resource {
	t.Helper()
	res := resource.New("User", schema.UserURI)
	res.Set("id", "2819c223")
	res.Set("userName", "bjensen")
	res.Set("active", true)
	res.Set("name", map[string]any{
		"givenName":  "Barbara",
		"familyName": "Jensen",
	})
	res.Set("emails", []any{
		map[string]any{"value": "bjensen@example.com", "type": "work", "primary": true},
		map[string]any{"value": "babs@jensen.org", "type": "home"},
	})
	res.SetExtension("urn:ietf:params:scim:schemas:extension:enterprise:2.0:User", map[string]any{
		"employeeNumber": "701984",
	})
	return res
}

func userEvaluator() *Evaluator {
	return NewEvaluator(schema.UserSchema(), []*schema.Schema{schema.EnterpriseUserSchema()})
}

func mustMatch(t *testing.T, input string, res *resource.Resource, want bool) {
	t.Helper()
	expr, err := Parse(input)
	if err != nil {
		t.Fatalf("%s: parse error: %v", input, err)
	}
	got, err := userEvaluator().Matches(expr, res)
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", input, err)
	}
	if got != want {
		t.Errorf("%s: expected %v, got %v", input, want, got)
	}
}

func TestMatchesNilExpression(t *testing.T) {
	got, err := userEvaluator().Matches(nil, testUser(t))
	if err != nil || !got {
		t.Fatalf("expected nil filter to match, got %v, %v", got, err)
	}
}

func TestMatchesStringComparisons(t *testing.T) {
	res := testUser(t)
	mustMatch(t, `userName eq "bjensen"`, res, true)
	mustMatch(t, `userName eq "BJENSEN"`, res, true) // userName is not caseExact
	mustMatch(t, `userName ne "other"`, res, true)
	mustMatch(t, `userName co "jens"`, res, true)
	mustMatch(t, `userName sw "bj"`, res, true)
	mustMatch(t, `userName ew "sen"`, res, true)
	mustMatch(t, `userName eq "other"`, res, false)
}

func TestMatchesBoolean(t *testing.T) {
	res := testUser(t)
	mustMatch(t, `active eq true`, res, true)
	mustMatch(t, `active eq false`, res, false)
	mustMatch(t, `active ne false`, res, true)
}

func TestMatchesPresence(t *testing.T) {
	res := testUser(t)
	mustMatch(t, `userName pr`, res, true)
	mustMatch(t, `externalId pr`, res, false)
	mustMatch(t, `emails pr`, res, true)
}

func TestMatchesAbsentAttribute(t *testing.T) {
	res := testUser(t)
	// Every comparator is false against a missing value except ne.
	mustMatch(t, `externalId eq "x"`, res, false)
	mustMatch(t, `externalId ne "x"`, res, true)
	mustMatch(t, `externalId co "x"`, res, false)
}

func TestMatchesSubAttribute(t *testing.T) {
	res := testUser(t)
	mustMatch(t, `name.givenName eq "Barbara"`, res, true)
	mustMatch(t, `name.familyName eq "Smith"`, res, false)
}

func TestMatchesMultiValuedAnyElement(t *testing.T) {
	res := testUser(t)
	mustMatch(t, `emails.value co "jensen.org"`, res, true)
	mustMatch(t, `emails.value eq "nobody@example.com"`, res, false)
	// Comparing the complex element directly targets its value sub-attribute.
	mustMatch(t, `emails eq "babs@jensen.org"`, res, true)
}

func TestMatchesValuePathFilter(t *testing.T) {
	res := testUser(t)
	mustMatch(t, `emails[type eq "work"].value eq "bjensen@example.com"`, res, true)
	mustMatch(t, `emails[type eq "work"].value eq "babs@jensen.org"`, res, false)
	mustMatch(t, `emails[type eq "other"] pr`, res, false)
	mustMatch(t, `emails[type eq "home" and value co "jensen"] pr`, res, true)
	mustMatch(t, `emails[primary eq true] pr`, res, true)
}

func TestMatchesNotNegatesExactly(t *testing.T) {
	res := testUser(t)
	inputs := []string{
		`userName eq "bjensen"`,
		`externalId pr`,
		`emails[type eq "work"] pr`,
	}
	ev := userEvaluator()
	for _, in := range inputs {
		expr, err := Parse(in)
		if err != nil {
			t.Fatalf("%s: parse error: %v", in, err)
		}
		plain, err := ev.Matches(expr, res)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", in, err)
		}
		negated, err := ev.Matches(NotExpression{Expr: expr}, res)
		if err != nil {
			t.Fatalf("not(%s): unexpected error: %v", in, err)
		}
		if negated == plain {
			t.Errorf("%s: negation did not invert result %v", in, plain)
		}
	}
}

func TestMatchesLogicalOperators(t *testing.T) {
	res := testUser(t)
	mustMatch(t, `userName eq "bjensen" and active eq true`, res, true)
	mustMatch(t, `userName eq "other" and active eq true`, res, false)
	mustMatch(t, `userName eq "other" or active eq true`, res, true)
	mustMatch(t, `userName eq "other" or active eq false`, res, false)
}

func TestMatchesExtensionAttribute(t *testing.T) {
	res := testUser(t)
	mustMatch(t, `urn:ietf:params:scim:schemas:extension:enterprise:2.0:User:employeeNumber eq "701984"`, res, true)
	mustMatch(t, `employeeNumber eq "701984"`, res, true) // unqualified falls through to extensions
}

func TestMatchesUnknownAttributeFails(t *testing.T) {
	expr, err := Parse(`nickname2 eq "x"`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	_, err = userEvaluator().Matches(expr, testUser(t))
	if !errors.Is(err, schema.ErrNoSuchAttribute) {
		t.Fatalf("expected ErrNoSuchAttribute, got %v", err)
	}
}

func TestMatchesDoesNotMutateResource(t *testing.T) {
	res := testUser(t)
	before := len(res.Attributes())
	emails, _ := res.Get("emails")
	elems := emails.([]any)
	beforeEmails := len(elems)

	mustMatch(t, `emails[type eq "work"].value sw "bjensen"`, res, true)

	if len(res.Attributes()) != before {
		t.Error("evaluation changed the attribute set")
	}
	emails, _ = res.Get("emails")
	if len(emails.([]any)) != beforeEmails {
		t.Error("evaluation changed the emails list")
	}
}
