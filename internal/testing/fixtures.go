package testing

// PersonModel is the entity model shared by resolution tests. Two collections
// hold people: users (flat fields) and accounts (nested contact fields).
const PersonModel = `{
  "attributes": {
    "name":  {"type": "string"},
    "email": {"type": "string"},
    "phone": {"type": "string"},
    "dob":   {"type": "date"},
    "age":   {"type": "number"}
  },
  "resolvers": {
    "email":    {"attributes": ["email"]},
    "phone":    {"attributes": ["phone"]},
    "name_dob": {"attributes": ["name", "dob"]}
  },
  "matchers": {
    "exact":    {"type": "term"},
    "text":     {"type": "match"},
    "fuzzy":    {"type": "fuzzy", "params": {"fuzziness": 1}},
    "same_day": {"type": "term"},
    "near":     {"type": "range", "params": {"tolerance": 1}}
  },
  "indices": {
    "users": {
      "fields": {
        "email": {"attribute": "email", "matcher": "exact"},
        "phone": {"attribute": "phone", "matcher": "exact"},
        "name":  {"attribute": "name", "matcher": "fuzzy"},
        "dob":   {"attribute": "dob", "matcher": "same_day"},
        "age":   {"attribute": "age", "matcher": "near"}
      }
    },
    "accounts": {
      "fields": {
        "contact.email": {"attribute": "email", "matcher": "text"},
        "contact.phone": {"attribute": "phone", "matcher": "exact"}
      }
    }
  }
}`

// PersonModelYAML is PersonModel in YAML form
const PersonModelYAML = `
attributes:
  name: {type: string}
  email: {type: string}
  phone: {type: string}
  dob: {type: date}
  age: {type: number}
resolvers:
  email: {attributes: [email]}
  phone: {attributes: [phone]}
  name_dob: {attributes: [name, dob]}
matchers:
  exact: {type: term}
  text: {type: match}
  fuzzy: {type: fuzzy, params: {fuzziness: 1}}
  same_day: {type: term}
  near: {type: range, params: {tolerance: 1}}
indices:
  users:
    fields:
      email: {attribute: email, matcher: exact}
      phone: {attribute: phone, matcher: exact}
      name: {attribute: name, matcher: fuzzy}
      dob: {attribute: dob, matcher: same_day}
      age: {attribute: age, matcher: near}
  accounts:
    fields:
      contact.email: {attribute: email, matcher: text}
      contact.phone: {attribute: phone, matcher: exact}
`

// PersonDocuments is NDJSON for the users and accounts collections.
//
//	neo          email neo@zion.net, phone 555-0101
//	thomas       phone 555-0101, email tanderson@metacortex.com  (reached from neo by phone)
//	acct-neo     contact.email TANDERSON@METACORTEX.COM          (reached from thomas by email)
//	trinity      unrelated
//	smith        unrelated, shares no values
const PersonDocuments = `{"_index":"users","_id":"neo","_source":{"name":"Neo","email":"neo@zion.net","phone":"555-0101","age":37}}
{"_index":"users","_id":"thomas","_source":{"name":"Thomas Anderson","email":"tanderson@metacortex.com","phone":"555-0101","dob":"1962-09-13"}}
{"_index":"accounts","_id":"acct-neo","_source":{"contact":{"email":"TANDERSON@METACORTEX.COM","phone":"555-0199"}}}
{"_index":"users","_id":"trinity","_source":{"name":"Trinity","email":"trinity@zion.net","phone":"555-0102"}}
{"_index":"users","_id":"smith","_source":{"name":"Agent Smith","email":"smith@matrix.gov","phone":"555-0000"}}
`
