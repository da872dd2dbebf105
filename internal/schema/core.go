package schema

// Well-known schema URIs served by this implementation.
const (
	UserURI       = "urn:ietf:params:scim:schemas:core:2.0:User"
	GroupURI      = "urn:ietf:params:scim:schemas:core:2.0:Group"
	EnterpriseURI = "urn:ietf:params:scim:schemas:extension:enterprise:2.0:User"
)

// commonAttributes are present on every resource regardless of type.
func commonAttributes() []Attribute {
	return []Attribute{
		{Name: "id", Type: TypeString, CaseExact: true, Mutability: ReadOnly, Returned: ReturnedAlways},
		{Name: "externalId", Type: TypeString, CaseExact: true, Mutability: ReadWrite, Returned: ReturnedDefault},
		{Name: "meta", Type: TypeComplex, Mutability: ReadOnly, Returned: ReturnedDefault, SubAttributes: []Attribute{
			{Name: "resourceType", Type: TypeString, CaseExact: true, Mutability: ReadOnly, Returned: ReturnedDefault},
			{Name: "created", Type: TypeDateTime, Mutability: ReadOnly, Returned: ReturnedDefault},
			{Name: "lastModified", Type: TypeDateTime, Mutability: ReadOnly, Returned: ReturnedDefault},
			{Name: "location", Type: TypeReference, CaseExact: true, Mutability: ReadOnly, Returned: ReturnedDefault},
			{Name: "version", Type: TypeString, CaseExact: true, Mutability: ReadOnly, Returned: ReturnedDefault},
		}},
	}
}

func multiValuedSub(refTypes []string) []Attribute {
	return []Attribute{
		{Name: "value", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
		{Name: "display", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
		{Name: "type", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault, CanonicalValues: refTypes},
		{Name: "primary", Type: TypeBoolean, Mutability: ReadWrite, Returned: ReturnedDefault},
	}
}

// UserSchema returns the RFC 7643 core User schema.
func UserSchema() *Schema {
	attrs := commonAttributes()
	attrs = append(attrs,
		Attribute{Name: "userName", Type: TypeString, Required: true, Mutability: ReadWrite, Returned: ReturnedDefault},
		Attribute{Name: "name", Type: TypeComplex, Mutability: ReadWrite, Returned: ReturnedDefault, SubAttributes: []Attribute{
			{Name: "formatted", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
			{Name: "familyName", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
			{Name: "givenName", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
			{Name: "middleName", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
			{Name: "honorificPrefix", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
			{Name: "honorificSuffix", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
		}},
		Attribute{Name: "displayName", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
		Attribute{Name: "nickName", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
		Attribute{Name: "profileUrl", Type: TypeReference, CaseExact: true, Mutability: ReadWrite, Returned: ReturnedDefault},
		Attribute{Name: "title", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
		Attribute{Name: "userType", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
		Attribute{Name: "preferredLanguage", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
		Attribute{Name: "locale", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
		Attribute{Name: "timezone", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
		Attribute{Name: "active", Type: TypeBoolean, Mutability: ReadWrite, Returned: ReturnedDefault},
		Attribute{Name: "password", Type: TypeString, Mutability: WriteOnly, Returned: ReturnedNever},
		Attribute{Name: "emails", Type: TypeComplex, MultiValued: true, Mutability: ReadWrite, Returned: ReturnedDefault,
			SubAttributes: multiValuedSub([]string{"work", "home", "other"})},
		Attribute{Name: "phoneNumbers", Type: TypeComplex, MultiValued: true, Mutability: ReadWrite, Returned: ReturnedDefault,
			SubAttributes: multiValuedSub([]string{"work", "home", "mobile", "fax", "pager", "other"})},
		Attribute{Name: "groups", Type: TypeComplex, MultiValued: true, Mutability: ReadOnly, Returned: ReturnedDefault, SubAttributes: []Attribute{
			{Name: "value", Type: TypeString, Mutability: ReadOnly, Returned: ReturnedDefault},
			{Name: "$ref", Type: TypeReference, CaseExact: true, Mutability: ReadOnly, Returned: ReturnedDefault},
			{Name: "display", Type: TypeString, Mutability: ReadOnly, Returned: ReturnedDefault},
			{Name: "type", Type: TypeString, Mutability: ReadOnly, Returned: ReturnedDefault, CanonicalValues: []string{"direct", "indirect"}},
		}},
	)
	return &Schema{
		ID:          UserURI,
		Name:        "User",
		Description: "User Account",
		Attributes:  attrs,
	}
}

// GroupSchema returns the RFC 7643 core Group schema.
func GroupSchema() *Schema {
	attrs := commonAttributes()
	attrs = append(attrs,
		Attribute{Name: "displayName", Type: TypeString, Required: true, Mutability: ReadWrite, Returned: ReturnedDefault},
		Attribute{Name: "members", Type: TypeComplex, MultiValued: true, Mutability: ReadWrite, Returned: ReturnedDefault, SubAttributes: []Attribute{
			{Name: "value", Type: TypeString, Mutability: Immutable, Returned: ReturnedDefault},
			{Name: "$ref", Type: TypeReference, CaseExact: true, Mutability: Immutable, Returned: ReturnedDefault},
			{Name: "display", Type: TypeString, Mutability: Immutable, Returned: ReturnedDefault},
			{Name: "type", Type: TypeString, Mutability: Immutable, Returned: ReturnedDefault, CanonicalValues: []string{"User", "Group"}},
		}},
	)
	return &Schema{
		ID:          GroupURI,
		Name:        "Group",
		Description: "Group",
		Attributes:  attrs,
	}
}

// EnterpriseUserSchema returns the RFC 7643 enterprise User extension.
func EnterpriseUserSchema() *Schema {
	return &Schema{
		ID:          EnterpriseURI,
		Name:        "EnterpriseUser",
		Description: "Enterprise User",
		Attributes: []Attribute{
			{Name: "employeeNumber", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
			{Name: "costCenter", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
			{Name: "organization", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
			{Name: "division", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
			{Name: "department", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
			{Name: "manager", Type: TypeComplex, Mutability: ReadWrite, Returned: ReturnedDefault, SubAttributes: []Attribute{
				{Name: "value", Type: TypeString, Mutability: ReadWrite, Returned: ReturnedDefault},
				{Name: "$ref", Type: TypeReference, CaseExact: true, Mutability: ReadWrite, Returned: ReturnedDefault},
				{Name: "displayName", Type: TypeString, Mutability: ReadOnly, Returned: ReturnedDefault},
			}},
		},
	}
}

// DefaultRegistry returns a registry preloaded with the core User and Group
// resource types plus the enterprise User extension.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.AddSchema(UserSchema())
	r.AddSchema(GroupSchema())
	r.AddSchema(EnterpriseUserSchema())
	// Schemas above are registered first, so these cannot fail.
	_ = r.AddResourceType(&ResourceType{
		Name:        "User",
		Endpoint:    "/Users",
		Description: "User Account",
		Schema:      UserURI,
		SchemaExtensions: []SchemaExtension{
			{Schema: EnterpriseURI},
		},
	})
	_ = r.AddResourceType(&ResourceType{
		Name:        "Group",
		Endpoint:    "/Groups",
		Description: "Group",
		Schema:      GroupURI,
	})
	return r
}
